// Package signup implements the public beta-signup endpoints: form
// submission, referral code lookup and account existence checks.
package signup

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dotctl/beta-portal/internal/db/models"
	"github.com/dotctl/beta-portal/internal/referral"
	"github.com/dotctl/beta-portal/internal/validation"
)

// Handlers serves the public signup API.
type Handlers struct {
	ledger *referral.Ledger
}

// NewHandlers creates the signup handlers.
func NewHandlers(ledger *referral.Ledger) *Handlers {
	return &Handlers{ledger: ledger}
}

// SubmitRequest is the signup form payload. The multi-word fields accept both
// camelCase and snake_case spellings; the web form sends camelCase.
type SubmitRequest struct {
	Email string `json:"email" binding:"required"`
	Name  string `json:"name"`
	Phone string `json:"phone"`

	UseCase              string `json:"useCase"`
	UseCaseSnake         string `json:"use_case"`
	ReferralCode         string `json:"referralCode"`
	ReferralCodeSnake    string `json:"referral_code"`
	EarlyAccessCode      string `json:"earlyAccessCode"`
	EarlyAccessCodeSnake string `json:"early_access_code"`
}

func (r *SubmitRequest) useCase() string {
	if r.UseCase != "" {
		return r.UseCase
	}
	return r.UseCaseSnake
}

func (r *SubmitRequest) referralCode() string {
	if r.ReferralCode != "" {
		return r.ReferralCode
	}
	return r.ReferralCodeSnake
}

func (r *SubmitRequest) earlyAccessCode() string {
	if r.EarlyAccessCode != "" {
		return r.EarlyAccessCode
	}
	return r.EarlyAccessCodeSnake
}

// @Summary      Submit a beta signup
// @Description  Creates a beta account, credits the referrer when a referral code is supplied, and emails a welcome message with the new account's own code.
// @Tags         Signup
// @Accept       json
// @Produce      json
// @Success      201  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "Validation error"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /api/submit [post]
func (h *Handlers) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	email, err := validation.ValidateEmail(req.Email)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name, err := validation.ValidateName(req.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	phone, err := validation.ValidatePhone(req.Phone)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	useCase, err := validation.ValidateUseCase(req.useCase())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.ledger.Signup(c.Request.Context(), referral.SignupRequest{
		Email:           email,
		Name:            name,
		Phone:           phone,
		UseCase:         useCase,
		ReferralCode:    req.referralCode(),
		EarlyAccessCode: req.earlyAccessCode(),
	})
	if err != nil {
		switch {
		case errors.Is(err, referral.ErrDuplicateEmail):
			c.JSON(http.StatusConflict, gin.H{"error": "This email is already registered"})
		case errors.Is(err, referral.ErrInvalidReferralCode):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid referral code"})
		case errors.Is(err, referral.ErrSelfReferral):
			c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot use your own referral code"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process signup"})
		}
		return
	}

	resp := gin.H{
		"email":           result.User.Email,
		"signup_position": result.User.SignupPosition,
		"referral_code":   result.User.ReferralCode,
	}
	if result.ReferralAttributed {
		resp["referral_attributed"] = true
	}
	c.JSON(http.StatusCreated, resp)
}

// @Summary      Look up a referral code
// @Description  Resolves a referral code to the owner's referral standing, so the signup page can show who invited the visitor and how far along they are.
// @Tags         Signup
// @Produce      json
// @Param        code  query  string  true  "Referral code"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}  "Unknown code"
// @Router       /api/referral [get]
func (h *Handlers) LookupReferral(c *gin.Context) {
	status, err := h.ledger.StatusByCode(c.Request.Context(), c.Query("code"))
	if err != nil {
		if errors.Is(err, referral.ErrInvalidReferralCode) {
			c.JSON(http.StatusNotFound, gin.H{"valid": false})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up referral code"})
		return
	}

	name := status.User.Name
	if name == "" {
		name = "a beta member"
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":          true,
		"referrer_name":  name,
		"referral_count": status.User.ReferralCount,
		"reward_months":  status.User.RewardMonths,
		"subscription":   status.Subscription,
		"milestones":     milestoneList(status.Milestones),
	})
}

// CheckUserRequest asks whether an email already has an account.
type CheckUserRequest struct {
	Email string `json:"email" binding:"required"`
}

// @Summary      Check whether an account exists
// @Description  Returns the account's referral standing when the email is registered, so a returning user can recover their code and balance.
// @Tags         Signup
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}  "Not registered"
// @Router       /api/check-user [post]
func (h *Handlers) CheckUser(c *gin.Context) {
	var req CheckUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	email, err := validation.ValidateEmail(req.Email)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.ledger.StatusByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, referral.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"exists": false})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check account"})
		return
	}

	resp := gin.H{
		"exists":          true,
		"signup_position": status.User.SignupPosition,
		"referral_code":   status.User.ReferralCode,
		"referral_count":  status.User.ReferralCount,
		"subscription":    status.Subscription,
		"milestones":      milestoneList(status.Milestones),
	}
	if status.NextMilestone != nil {
		resp["next_milestone"] = gin.H{
			"name":         status.NextMilestone.Name,
			"threshold":    status.NextMilestone.Threshold,
			"bonus_months": status.NextMilestone.BonusMonths,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func milestoneList(milestones []*models.MilestoneReached) []gin.H {
	out := make([]gin.H, 0, len(milestones))
	for _, m := range milestones {
		out = append(out, gin.H{
			"milestone":    m.Milestone,
			"bonus_months": m.BonusMonths,
			"achieved_at":  m.AchievedAt,
		})
	}
	return out
}
