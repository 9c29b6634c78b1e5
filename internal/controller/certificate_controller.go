package controller

import (
	"fmt"
	"io"
	"paes_math_backend/internal/service"
	"paes_math_backend/internal/util"
	"paes_math_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CertificateController struct {
	Service *service.CertificateService
}

func NewCertificateController(s *service.CertificateService) *CertificateController {
	return &CertificateController{Service: s}
}

// ListMine godoc
// @Summary 我的证书
// @Tags 证书
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Certificate} "成功"
// @Router /api/certificates [get]
func (c *CertificateController) ListMine(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	list, err := c.Service.ListMine(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// Download godoc
// @Summary 下载证书 PDF
// @Description 仅证书本人或管理员可以下载
// @Tags 证书
// @Produce  application/pdf
// @Security ApiKeyAuth
// @Param   code path string true "证书编号"
// @Success 200 {file} file "PDF"
// @Failure 404 {object} util.Response "证书不存在"
// @Router /api/certificates/{code}/download [get]
func (c *CertificateController) Download(ctx *gin.Context) {
	actor := service.ActorFromClaims(util.GetUserFromContext(ctx))
	body, cert, err := c.Service.Download(ctx.Request.Context(), actor, ctx.Param("code"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	defer body.Close()

	ctx.Header("Content-Type", util.MimePDF)
	ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="certificado-%s.pdf"`, cert.Code))
	ctx.Status(200)
	if _, err := io.Copy(ctx.Writer, body); err != nil {
		logger.Log.Warn("Certificate download interrupted", zap.String("code", cert.Code), zap.Error(err))
	}
}

// Verify godoc
// @Summary 公开验证证书
// @Tags 证书
// @Produce  json
// @Param   code path string true "证书编号"
// @Success 200 {object} util.Response{data=service.CertificateVerification} "证书有效"
// @Failure 404 {object} util.Response "证书不存在"
// @Router /api/certificates/verify/{code} [get]
func (c *CertificateController) Verify(ctx *gin.Context) {
	result, err := c.Service.Verify(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}
