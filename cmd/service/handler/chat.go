package handler

import (
	"github.com/gin-gonic/gin"

	v1 "github.com/chatdesk/chatdesk/app/logic/v1"
	"github.com/chatdesk/chatdesk/app/response"
	"github.com/chatdesk/chatdesk/pkg/types"
	"github.com/chatdesk/chatdesk/pkg/types/protocol"
	"github.com/chatdesk/chatdesk/pkg/utils"
)

// EndSession closes a session over HTTP. Mirrors the end_session socket event
// so a client can always end a chat even with a broken socket.
func (s *HttpSrv) EndSession(c *gin.Context) {
	var req protocol.EndSessionRequest
	if err := utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	claims, err := v1.MustGetTokenClaim(c.Request.Context())
	if err != nil {
		response.APIError(c, err)
		return
	}

	res, err := v1.NewChatLogic(c.Request.Context(), s.Core).End(types.ConnectionRole(claims.GetRole()), claims.GetUser(), req.SessionID, req.Notes)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, res)
}

func (s *HttpSrv) TransferSession(c *gin.Context) {
	var req protocol.TransferSessionRequest
	if err := utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	claims, err := v1.MustGetTokenClaim(c.Request.Context())
	if err != nil {
		response.APIError(c, err)
		return
	}

	res, err := v1.NewChatLogic(c.Request.Context(), s.Core).Transfer(claims.GetUser(), req)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, res)
}

func (s *HttpSrv) GetSessionHistory(c *gin.Context) {
	var req protocol.GetHistoryRequest
	if err := utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}
	req.SessionID = c.Param("sessionid")

	res, err := v1.NewChatLogic(c.Request.Context(), s.Core).GetHistory(req)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, res)
}

func (s *HttpSrv) GetStatistics(c *gin.Context) {
	claims, err := v1.MustGetTokenClaim(c.Request.Context())
	if err != nil {
		response.APIError(c, err)
		return
	}

	res, err := v1.NewChatLogic(c.Request.Context(), s.Core).Statistics(claims.GetUser())
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, res)
}
