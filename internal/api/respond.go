package api

import (
	"errors"
	"net/http"

	"ChipStake/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// writeServiceError 业务错误到 HTTP 状态码的统一映射。
// 校验类 400、实体不存在 404、余额不足 422、状态冲突 409、
// 外部服务故障 502/503（临时故障带 Retry-After 语义）、一致性破坏 500。
func writeServiceError(c *gin.Context, logger *logrus.Logger, op string, err error) {
	var (
		validationErr  *service.ValidationError
		choiceErr      *service.InvalidChoiceError
		notFoundErr    *service.NotFoundError
		fundsErr       *service.InsufficientFundsError
		wonErr         *service.InsufficientWonBalanceError
		transitionErr  *service.InvalidStateTransitionError
		externalErr    *service.ExternalServiceFailureError
		consistencyErr *service.ConsistencyViolationError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Message, "rule": validationErr.Rule})
	case errors.As(err, &choiceErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": choiceErr.Error(), "valid_choices": choiceErr.Valid})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundErr.Error()})
	case errors.As(err, &fundsErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     fundsErr.Error(),
			"available": fundsErr.Available,
			"requested": fundsErr.Requested,
		})
	case errors.As(err, &wonErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     wonErr.Error(),
			"available": wonErr.Available,
			"requested": wonErr.Requested,
		})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{"error": transitionErr.Error()})
	case errors.As(err, &externalErr):
		logger.WithError(err).Warn(op + " 外部服务故障")
		status := http.StatusBadGateway
		if externalErr.Transient {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": externalErr.Error(), "transient": externalErr.Transient})
	case errors.As(err, &consistencyErr):
		// 账本链断裂是致命问题，必须落 Error 级日志供对账
		logger.WithError(err).Error(op + " 账本一致性被破坏")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "账本一致性校验失败，请联系管理员"})
	default:
		logger.WithError(err).Error(op + " failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
