package model

import (
	"strings"
	"time"
)

type ComplaintStatus string

const (
	StatusPending    ComplaintStatus = "pending"
	StatusInProgress ComplaintStatus = "in_progress"
	StatusResolved   ComplaintStatus = "resolved"
	StatusRejected   ComplaintStatus = "rejected"
)

var Statuses = []ComplaintStatus{StatusPending, StatusInProgress, StatusResolved, StatusRejected}

func (s ComplaintStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// Title renders the status for humans, e.g. "In Progress".
func (s ComplaintStatus) Title() string {
	words := strings.Split(string(s), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

type Complaint struct {
	ID                  int64           `json:"id"`
	PhotoPaths          []string        `json:"photo_paths"`
	Location            string          `json:"location"`
	Latitude            *float64        `json:"latitude,omitempty"`
	Longitude           *float64        `json:"longitude,omitempty"`
	Tags                []string        `json:"tags"`
	Description         string          `json:"description,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	Status              ComplaintStatus `json:"status"`
	ResolvedAt          *time.Time      `json:"resolved_at,omitempty"`
	ResolutionTimeHours *float64        `json:"resolution_time_hours,omitempty"`
	UserID              *int64          `json:"user_id,omitempty"`
	AssignedTo          *int64          `json:"assigned_to,omitempty"`
	UpdatedBy           *int64          `json:"updated_by,omitempty"`
}

// PhotoPathSeparator joins photo handles in the photo_path column.
const PhotoPathSeparator = ","

func JoinPhotoPaths(paths []string) string {
	return strings.Join(paths, PhotoPathSeparator)
}

func SplitPhotoPaths(value string) []string {
	var paths []string
	for _, p := range strings.Split(value, PhotoPathSeparator) {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type Statistics struct {
	Total              int                     `json:"total"`
	ByStatus           map[ComplaintStatus]int `json:"by_status"`
	AvgResolutionHours *float64                `json:"avg_resolution_hours"`
	ByTag              map[string]int          `json:"by_tag"`
	Timeline           []DayCount              `json:"timeline"`
}

// ExportColumns is the fixed header of the complaint export.
var ExportColumns = []string{
	"id", "location", "latitude", "longitude", "tags", "description",
	"status", "created_at", "resolved_at", "resolution_time_hours",
}

type ExportTable struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Request/Response DTOs
type SubmitComplaintRequest struct {
	Location    string
	Latitude    *float64
	Longitude   *float64
	Tags        []string
	Description string
	UserID      *int64
}

// Upload is a raw image payload as received from the client.
type Upload struct {
	Name string
	Data []byte
}

type UpdateStatusRequest struct {
	Status      ComplaintStatus `json:"status" binding:"required"`
	NotifyEmail string          `json:"notify_email"`
}

type AssignRequest struct {
	AssignedTo int64 `json:"assigned_to" binding:"required"`
}

type BulkStatusRequest struct {
	IDs    []int64         `json:"ids" binding:"required"`
	Status ComplaintStatus `json:"status" binding:"required"`
}

type BulkAssignRequest struct {
	IDs        []int64 `json:"ids" binding:"required"`
	AssignedTo int64   `json:"assigned_to" binding:"required"`
}

type ComplaintListResponse struct {
	Complaints []Complaint `json:"complaints"`
	Total      int         `json:"total"`
}

type GPSResponse struct {
	Found     bool     `json:"found"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type BulkResult struct {
	Updated int `json:"updated"`
}

// StatusChange describes a completed status transition for notification.
type StatusChange struct {
	ComplaintID int64           `json:"complaint_id"`
	Location    string          `json:"location"`
	OldStatus   ComplaintStatus `json:"old_status"`
	NewStatus   ComplaintStatus `json:"new_status"`
	NotifyEmail string          `json:"notify_email"`
	ChangedAt   time.Time       `json:"changed_at"`
}
