package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paydomain "github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	"github.com/smallbiznis/hyperion/pkg/db/pagination"
	"go.uber.org/zap"
)

type signTOSRequest struct {
	AcceptedTOSVersion int `json:"accepted_tos_version"`
}

func (s *Server) RegisterUser(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if err := s.payments.Register(c.Request.Context(), userID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) GetTOS(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	status, err := s.payments.GetTOS(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) SignTOS(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	var req signTOSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("Invalid request body"))
		return
	}
	if err := s.payments.SignTOS(c.Request.Context(), userID, req.AcceptedTOSVersion); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) GetWallet(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	wallet, err := s.payments.GetWallet(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

func (s *Server) GetHistory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError("Invalid pagination parameters"))
		return
	}
	history, err := s.payments.History(c.Request.Context(), userID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (s *Server) CreateDevice(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	var req paydomain.CreateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("Invalid request body"))
		return
	}
	device, err := s.payments.CreateDevice(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, device)
}

func (s *Server) ListDevices(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	devices, err := s.payments.ListDevices(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if devices == nil {
		devices = []paydomain.WalletDevice{}
	}
	c.JSON(http.StatusOK, devices)
}

// ActivateDevice is opened from the activation email link.
func (s *Server) ActivateDevice(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		AbortWithError(c, invalidRequestError("Missing activation token"))
		return
	}
	device, err := s.payments.ActivateDevice(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

func (s *Server) RevokeDevice(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	deviceID, err := pathUUID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.payments.RevokeDevice(c.Request.Context(), userID, deviceID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) CreateStore(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	var req paydomain.CreateStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("Invalid request body"))
		return
	}
	store, err := s.payments.CreateStore(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, store)
}

func (s *Server) CreateSeller(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	storeID, err := pathSnowflakeID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req paydomain.CreateSellerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("Invalid request body"))
		return
	}
	seller, err := s.payments.CreateSeller(c.Request.Context(), userID, storeID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, seller)
}

func (s *Server) StoreScan(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	storeID, err := pathSnowflakeID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var info paydomain.ScanInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		AbortWithError(c, invalidRequestError("Invalid QR code content"))
		return
	}
	tx, err := s.payments.StoreScan(c.Request.Context(), userID, storeID, info)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (s *Server) RefundTransaction(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	transactionID, err := pathUUID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req paydomain.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("Invalid request body"))
		return
	}
	if _, err := s.payments.RefundTransaction(c.Request.Context(), userID, transactionID, req); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) CancelTransaction(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	transactionID, err := pathUUID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.payments.CancelTransaction(c.Request.Context(), userID, transactionID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) TransactionReceipt(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	transactionID, err := pathUUID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	pdf, err := s.payments.Receipt(c.Request.Context(), userID, transactionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="receipt-`+transactionID.String()+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (s *Server) InitTransfer(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	var req paydomain.InitTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("Invalid request body"))
		return
	}
	transfer, err := s.payments.InitTransfer(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, transfer)
}

// TransferCallback is called by the checkout provider once a top-up is paid.
func (s *Server) TransferCallback(c *gin.Context) {
	var cb paydomain.TransferCallback
	if err := c.ShouldBindJSON(&cb); err != nil || strings.TrimSpace(cb.CheckoutID) == "" {
		AbortWithError(c, invalidRequestError("Invalid callback body"))
		return
	}
	if _, err := s.payments.ConfirmTransfer(c.Request.Context(), cb); err != nil {
		if errors.Is(err, paydomain.ErrTransferAlreadyApplied) {
			// Providers retry callbacks; the first delivery already credited the wallet.
			c.Status(http.StatusNoContent)
			return
		}
		s.log.Warn("transfer callback rejected",
			zap.String("checkout_id", cb.CheckoutID),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
