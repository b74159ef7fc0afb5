package service

import (
	"net/http"

	midsec "RProject/middleware/security"
	errors "RProject/tools/errs"

	"github.com/gin-gonic/gin"
)

func identityFrom(c *gin.Context) Identity {
	return Identity{
		TenantID:   c.GetString(midsec.CtxTenantKey),
		UserID:     c.GetString(midsec.CtxUserKey),
		DeviceUUID: c.GetString(midsec.CtxDeviceKey),
	}
}

// writeError maps the taxonomy onto HTTP statuses: validation and range are
// 400-class, authorization 403, everything else 500 (transient to the client).
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errors.CodeOf(err) {
	case errors.CodeValidation, errors.CodeRangeTooLarge:
		status = http.StatusBadRequest
	case errors.CodeAuthorization:
		status = http.StatusForbidden
	}
	ce, ok := errors.Unwrap(err).(*errors.CodeError)
	if !ok {
		e := errors.ErrTransient.WithDetail(err.Error())
		ce = &e
	}
	c.AbortWithStatusJSON(status, ce)
}

func (s *Service) HandleAccept(c *gin.Context) {
	var req AcceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.ErrValidation.WrapMsg("bad request body", "err", err))
		return
	}
	resp, err := s.Accept(c.Request.Context(), identityFrom(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Service) HandlePull(c *gin.Context) {
	var req PullRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		writeError(c, errors.ErrValidation.WrapMsg("bad query", "err", err))
		return
	}
	resp, err := s.Pull(c.Request.Context(), identityFrom(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Service) HandleRange(c *gin.Context) {
	var req RangeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		writeError(c, errors.ErrValidation.WrapMsg("bad query", "err", err))
		return
	}
	resp, err := s.Range(c.Request.Context(), identityFrom(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Service) HandleReceipt(c *gin.Context) {
	var req ReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.ErrValidation.WrapMsg("bad request body", "err", err))
		return
	}
	resp, err := s.Receipt(c.Request.Context(), identityFrom(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
