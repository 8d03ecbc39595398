// Package devices implements the device-linking API consumed by the dotctl
// client: OTP request, link submission and license status checks.
package devices

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dotctl/beta-portal/internal/license"
	"github.com/dotctl/beta-portal/internal/validation"
)

// Handlers serves the device-linking API.
type Handlers struct {
	binder *license.Binder
}

// NewHandlers creates the device handlers.
func NewHandlers(binder *license.Binder) *Handlers {
	return &Handlers{binder: binder}
}

// RequestOTPRequest asks for a device-linking code.
type RequestOTPRequest struct {
	Email string `json:"email" binding:"required"`
}

// @Summary      Request a device-linking code
// @Description  Emails a 6-digit one-time code to the account. Any previous live code is superseded.
// @Tags         Devices
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}  "Unknown account"
// @Router       /api/dotctl/referral/request-otp [post]
func (h *Handlers) RequestOTP(c *gin.Context) {
	var req RequestOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	email, err := validation.ValidateEmail(req.Email)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.binder.RequestOTP(c.Request.Context(), email); err != nil {
		if errors.Is(err, license.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No account found for this email"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send verification code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Verification code sent"})
}

// LinkDeviceRequest binds a device with a verified code. Clients disagree on
// the hardware id field spelling, so both are accepted.
type LinkDeviceRequest struct {
	Email           string `json:"email" binding:"required"`
	OTP             string `json:"otp" binding:"required"`
	HardwareID      string `json:"hardwareId"`
	HardwareIDSnake string `json:"hardware_id"`
}

func (r *LinkDeviceRequest) hardwareID() string {
	if r.HardwareID != "" {
		return r.HardwareID
	}
	return r.HardwareIDSnake
}

// @Summary      Link a device
// @Description  Verifies the one-time code and mints a license for the device, sized by the account's reward balance.
// @Tags         Devices
// @Accept       json
// @Produce      json
// @Success      201  {object}  license.License
// @Failure      400  {object}  map[string]interface{}  "Invalid code or hardware id"
// @Failure      409  {object}  map[string]interface{}  "Device already linked"
// @Router       /api/dotctl/referral/link-device [post]
func (h *Handlers) LinkDevice(c *gin.Context) {
	var req LinkDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	email, err := validation.ValidateEmail(req.Email)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lic, err := h.binder.LinkDevice(c.Request.Context(), email, req.OTP, req.hardwareID())
	if err != nil {
		switch {
		case errors.Is(err, license.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "No account found for this email"})
		case errors.Is(err, license.ErrOTPInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, license.ErrInvalidHardwareID):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, license.ErrAlreadyLinked):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, license.ErrDeviceConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to link device"})
		}
		return
	}

	c.JSON(http.StatusCreated, lic)
}

// @Summary      Check device status
// @Description  Reports the license bound to a hardware id and any extension earned by referral growth since issuance.
// @Tags         Devices
// @Produce      json
// @Param        hardwareId  query  string  true  "Hardware identifier"
// @Success      200  {object}  license.Status
// @Router       /api/dotctl/referral/status [get]
func (h *Handlers) Status(c *gin.Context) {
	hardwareID := c.Query("hardwareId")
	if hardwareID == "" {
		hardwareID = c.Query("hardware_id")
	}
	if hardwareID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hardwareId is required"})
		return
	}

	status, err := h.binder.CheckStatus(c.Request.Context(), hardwareID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check device status"})
		return
	}
	c.JSON(http.StatusOK, status)
}
