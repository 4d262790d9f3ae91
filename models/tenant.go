package models

import (
	"time"
)

// ApprovalStatus is the review state of a tenant's pending configuration.
type ApprovalStatus string

const (
	StatusDraft             ApprovalStatus = "draft"
	StatusPendingAdmin      ApprovalStatus = "pending_admin_review"
	StatusPendingSuperAdmin ApprovalStatus = "pending_super_admin_review"
	StatusPublished         ApprovalStatus = "published"
)

// Pending reports whether s waits on a reviewer.
func (s ApprovalStatus) Pending() bool {
	return s == StatusPendingAdmin || s == StatusPendingSuperAdmin
}

func (s ApprovalStatus) OrDefault() ApprovalStatus {
	if s == "" {
		return StatusDraft
	}
	return s
}

const (
	DefaultPrimaryColor   = "#10B981"
	DefaultWelcomeMessage = "Hello! How can I help you?"
)

// ChatbotConfig is what a demo page renders for a tenant.
type ChatbotConfig struct {
	BotName        string `json:"bot_name" firestore:"bot_name" binding:"required"`
	PrimaryColor   string `json:"primary_color" firestore:"primary_color" binding:"omitempty,hexcolor"`
	WelcomeMessage string `json:"welcome_message" firestore:"welcome_message"`
	LogoURL        string `json:"logo_url,omitempty" firestore:"logo_url,omitempty" binding:"omitempty,url"`
	EmaTenantID    string `json:"ema_tenant_id" firestore:"ema_tenant_id"`
	EmaProjectID   string `json:"ema_project_id" firestore:"ema_project_id"`
	EmaPersonaID   string `json:"ema_persona_id" firestore:"ema_persona_id"`
}

// WithDefaults returns a copy of c with empty colour and greeting filled in.
func (c ChatbotConfig) WithDefaults() ChatbotConfig {
	if c.PrimaryColor == "" {
		c.PrimaryColor = DefaultPrimaryColor
	}
	if c.WelcomeMessage == "" {
		c.WelcomeMessage = DefaultWelcomeMessage
	}
	return c
}

// Tenant is a client of the platform and the unit of the approval workflow.
type Tenant struct {
	TenantID       string         `json:"tenant_id" firestore:"tenant_id"`
	ClientName     string         `json:"client_name" firestore:"client_name"`
	Slug           string         `json:"slug" firestore:"slug"`
	LiveConfig     *ChatbotConfig `json:"live_config" firestore:"live_config"`
	PendingConfig  *ChatbotConfig `json:"pending_config" firestore:"pending_config"`
	ApprovalStatus ApprovalStatus `json:"approval_status" firestore:"approval_status"`
	SubmittedBy    string         `json:"submitted_by,omitempty" firestore:"submitted_by"`
	LastModifiedBy string         `json:"last_modified_by" firestore:"last_modified_by"`
	LastModifiedAt time.Time      `json:"last_modified_at" firestore:"last_modified_at"`
	CreatedAt      time.Time      `json:"created_at" firestore:"created_at"`
}

// Touch stamps the tenant as modified by email.
func (t *Tenant) Touch(email string) {
	t.LastModifiedBy = email
	t.LastModifiedAt = time.Now().UTC()
}

// NewTenantRequest is the onboarding payload of the admin tenants endpoint.
type NewTenantRequest struct {
	TenantID       string `json:"tenant_id"`
	Slug           string `json:"slug" binding:"omitempty,slug"`
	ClientName     string `json:"client_name"`
	BotName        string `json:"bot_name"`
	PrimaryColor   string `json:"primary_color" binding:"omitempty,hexcolor"`
	WelcomeMessage string `json:"welcome_message"`
}

// InitialConfig is the live configuration a freshly onboarded tenant starts with.
func (r NewTenantRequest) InitialConfig() ChatbotConfig {
	cfg := ChatbotConfig{
		BotName:        r.BotName,
		PrimaryColor:   r.PrimaryColor,
		WelcomeMessage: r.WelcomeMessage,
		LogoURL:        "https://via.placeholder.com/150",
	}
	if cfg.BotName == "" {
		cfg.BotName = "My Bot"
	}
	if cfg.PrimaryColor == "" {
		cfg.PrimaryColor = DefaultPrimaryColor
	}
	if cfg.WelcomeMessage == "" {
		cfg.WelcomeMessage = "Hello! How can we help?"
	}
	return cfg
}
