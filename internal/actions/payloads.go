package actions

import (
	"encoding/json"

	"github.com/foamcrew/foamcrew/internal/jobrecord"
)

// Envelope is the request body for every action.
type Envelope struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type loginPayload struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type signupPayload struct {
	Username    string `json:"username" validate:"required,min=3"`
	Password    string `json:"password" validate:"required,min=8"`
	CompanyName string `json:"companyName" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
}

type crewLoginPayload struct {
	Username string `json:"username" validate:"required"`
	Pin      string `json:"pin" validate:"required,len=4,numeric"`
}

type trialPayload struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone"`
}

type updatePasswordPayload struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

type heartbeatPayload struct {
	// Since is the client's last-sync moment in unix milliseconds.
	// Zero means the client has no state and wants everything.
	Since int64 `json:"since" validate:"gte=0"`
}

type estimatePayload struct {
	EstimateID string `json:"estimateId" validate:"required"`
}

type completeJobPayload struct {
	EstimateID string            `json:"estimateId" validate:"required"`
	Actuals    jobrecord.Actuals `json:"actuals"`
}

type sendMessagePayload struct {
	EstimateID string `json:"estimateId" validate:"required"`
	Content    string `json:"content" validate:"required"`
}

type logTimePayload struct {
	JobID     string `json:"jobId" validate:"required"`
	TechName  string `json:"techName" validate:"required"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime"`
}

type workOrderPayload struct {
	EstimateID string `json:"estimateId" validate:"required"`
	CrewNotes  string `json:"crewNotes"`
}

type savePDFPayload struct {
	EstimateID string `json:"estimateId" validate:"required"`
	FileName   string `json:"fileName" validate:"required"`
	Data       string `json:"data" validate:"required"`
}

type uploadImagePayload struct {
	EstimateID string `json:"estimateId"`
	FileName   string `json:"fileName" validate:"required"`
	Data       string `json:"data" validate:"required"`
}
