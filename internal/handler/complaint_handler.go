package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"pathpatrol/internal/export"
	"pathpatrol/internal/media"
	"pathpatrol/internal/model"
	"pathpatrol/internal/service"

	"github.com/gin-gonic/gin"
)

type ComplaintHandler struct {
	complaintService *service.ComplaintService
	maxUploadBytes   int64
}

func NewComplaintHandler(complaintService *service.ComplaintService, maxUploadBytes int64) *ComplaintHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = media.DefaultMaxBytes
	}
	return &ComplaintHandler{
		complaintService: complaintService,
		maxUploadBytes:   maxUploadBytes,
	}
}

// Handles POST /complaints - multipart form with one or more "photos".
func (h *ComplaintHandler) Submit(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}

	req := model.SubmitComplaintRequest{
		Location:    c.PostForm("location"),
		Description: c.PostForm("description"),
		Tags:        splitTags(form.Value["tags"]),
	}
	if req.Latitude, err = optionalFloat(c.PostForm("latitude")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid latitude"})
		return
	}
	if req.Longitude, err = optionalFloat(c.PostForm("longitude")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid longitude"})
		return
	}

	uploads := make([]model.Upload, 0, len(form.File["photos"]))
	for _, fh := range form.File["photos"] {
		data, err := h.readUpload(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read " + fh.Filename})
			return
		}
		uploads = append(uploads, model.Upload{Name: fh.Filename, Data: data})
	}

	id, err := h.complaintService.Submit(c.Request.Context(), currentUser(c), &req, uploads)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Complaint submitted successfully",
		"id":      id,
	})
}

// Handles GET /complaints - supports limit, offset, tag, status, q, from, to.
func (h *ComplaintHandler) List(c *gin.Context) {
	filter := service.ListFilter{
		Tag:    c.Query("tag"),
		Status: model.ComplaintStatus(c.Query("status")),
		Query:  strings.TrimSpace(c.Query("q")),
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	var err error
	if filter.From, err = optionalDate(c.Query("from")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
		return
	}
	if filter.To, err = optionalDate(c.Query("to")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
		return
	}

	response, err := h.complaintService.List(c.Request.Context(), currentUser(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *ComplaintHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	complaint, err := h.complaintService.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, complaint)
}

func (h *ComplaintHandler) Mine(c *gin.Context) {
	response, err := h.complaintService.ListMine(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *ComplaintHandler) Assigned(c *gin.Context) {
	response, err := h.complaintService.ListAssigned(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Handles PATCH /complaints/:id/status
func (h *ComplaintHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.complaintService.UpdateStatus(c.Request.Context(), currentUser(c), id, req.Status, req.NotifyEmail)
	if err != nil {
		respondError(c, err)
		return
	}
	if !updated {
		c.JSON(http.StatusNotFound, gin.H{"error": "complaint not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Status updated successfully"})
}

// Handles PATCH /complaints/:id/assign
func (h *ComplaintHandler) Assign(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req model.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assigned, err := h.complaintService.Assign(c.Request.Context(), currentUser(c), id, req.AssignedTo)
	if err != nil {
		respondError(c, err)
		return
	}
	if !assigned {
		c.JSON(http.StatusNotFound, gin.H{"error": "complaint not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Complaint assigned successfully"})
}

func (h *ComplaintHandler) BulkStatus(c *gin.Context) {
	var req model.BulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := h.complaintService.BulkUpdateStatus(c.Request.Context(), currentUser(c), req.IDs, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.BulkResult{Updated: n})
}

func (h *ComplaintHandler) BulkAssign(c *gin.Context) {
	var req model.BulkAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := h.complaintService.BulkAssign(c.Request.Context(), currentUser(c), req.IDs, req.AssignedTo)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.BulkResult{Updated: n})
}

// Handles DELETE /complaints/:id - removes the row and its images.
func (h *ComplaintHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	deleted, err := h.complaintService.Delete(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "complaint not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Complaint deleted successfully"})
}

func (h *ComplaintHandler) Statistics(c *gin.Context) {
	stats, err := h.complaintService.Statistics(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Handles GET /complaints/export?format=csv|xlsx
func (h *ComplaintHandler) Export(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		respondError(c, err)
		return
	}
	table, err := h.complaintService.ExportTable(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", format.ContentType())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.Filename(time.Now())))
	c.Status(http.StatusOK)
	if err := export.Write(c.Writer, format, table); err != nil {
		_ = c.Error(err)
	}
}

// Handles POST /complaints/gps - reads EXIF coordinates from a "photo" field.
func (h *ComplaintHandler) ExtractGPS(c *gin.Context) {
	fh, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo is required"})
		return
	}
	data, err := h.readUpload(fh)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read photo"})
		return
	}
	c.JSON(http.StatusOK, h.complaintService.ExtractGPS(data))
}

func (h *ComplaintHandler) BackfillCoordinates(c *gin.Context) {
	n, err := h.complaintService.BackfillCoordinates(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.BulkResult{Updated: n})
}

func (h *ComplaintHandler) Tags(c *gin.Context) {
	tags := h.complaintService.DefaultTags()
	if tags == nil {
		tags = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

// Handles GET /uploads/*handle - streams a stored image.
func (h *ComplaintHandler) ServeUpload(c *gin.Context) {
	handle := path.Join(media.UploadPrefix, strings.TrimPrefix(c.Param("handle"), "/"))
	if err := media.ValidateHandle(handle); err != nil {
		respondError(c, err)
		return
	}
	rc, err := h.complaintService.OpenImage(c.Request.Context(), handle)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", "public, max-age=86400")
	c.DataFromReader(http.StatusOK, -1, media.ContentType(handle), rc, nil)
}

// readUpload reads at most one byte past the limit so the media store can
// reject oversized images itself.
func (h *ComplaintHandler) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
}

// splitTags accepts repeated "tags" fields as well as comma separated lists.
func splitTags(values []string) []string {
	var tags []string
	for _, v := range values {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	return tags
}

func optionalFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
