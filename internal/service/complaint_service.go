package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"pathpatrol/internal/auth"
	"pathpatrol/internal/export"
	"pathpatrol/internal/geocode"
	"pathpatrol/internal/media"
	"pathpatrol/internal/model"
	"pathpatrol/internal/obs"
	"pathpatrol/internal/repository"

	"github.com/samber/lo"
)

const notifyTimeout = 30 * time.Second

// ComplaintStore is the persistence gateway used by ComplaintService.
type ComplaintStore interface {
	Create(ctx context.Context, c *model.Complaint) (int64, error)
	Get(ctx context.Context, id int64) (*model.Complaint, error)
	List(ctx context.Context, limit, offset int) ([]model.Complaint, error)
	Count(ctx context.Context) (int, error)
	All(ctx context.Context) ([]model.Complaint, error)
	FilterByTag(ctx context.Context, tag string) ([]model.Complaint, error)
	FilterByStatus(ctx context.Context, status model.ComplaintStatus) ([]model.Complaint, error)
	Search(ctx context.Context, term string) ([]model.Complaint, error)
	FilterByDateRange(ctx context.Context, start, end time.Time) ([]model.Complaint, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Complaint, error)
	ListAssignedTo(ctx context.Context, userID int64) ([]model.Complaint, error)
	ListMissingCoordinates(ctx context.Context) ([]model.Complaint, error)
	UpdateStatus(ctx context.Context, id int64, status model.ComplaintStatus, updatedBy *int64) (bool, error)
	Assign(ctx context.Context, id, assigneeID int64, updatedBy *int64) (bool, error)
	UpdateCoordinates(ctx context.Context, id int64, lat, lon float64) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	BulkUpdateStatus(ctx context.Context, ids []int64, status model.ComplaintStatus, updatedBy *int64) (int, error)
	BulkAssign(ctx context.Context, ids []int64, assigneeID int64, updatedBy *int64) (int, error)
	Statistics(ctx context.Context) (*model.Statistics, error)
}

type MediaStore interface {
	Save(ctx context.Context, raw []byte, originalName string) (string, error)
	Delete(ctx context.Context, handle string) (bool, error)
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
}

// StatusNotifier delivers status changes to the complaint's contact address.
type StatusNotifier interface {
	NotifyStatusChange(ctx context.Context, change model.StatusChange) error
}

type Geocoder interface {
	Search(ctx context.Context, query string) []geocode.Place
}

type ListFilter struct {
	Limit  int
	Offset int
	Tag    string
	Status model.ComplaintStatus
	Query  string
	From   *time.Time
	To     *time.Time
}

func (f ListFilter) empty() bool {
	return f.Tag == "" && f.Status == "" && f.Query == "" && f.From == nil && f.To == nil
}

type ComplaintService struct {
	store       ComplaintStore
	media       MediaStore
	notifier    StatusNotifier
	geocoder    Geocoder
	tagMatch    repository.TagMatch
	defaultTags []string
	now         func() time.Time
}

type ComplaintOption func(*ComplaintService)

func WithGeocoder(g Geocoder) ComplaintOption {
	return func(s *ComplaintService) { s.geocoder = g }
}

// WithTagMatching must agree with the gateway's tag mode; it drives the
// in-memory tag filter applied on combined queries.
func WithTagMatching(m repository.TagMatch) ComplaintOption {
	return func(s *ComplaintService) { s.tagMatch = m }
}

func WithDefaultTags(tags []string) ComplaintOption {
	return func(s *ComplaintService) { s.defaultTags = tags }
}

func NewComplaintService(store ComplaintStore, mediaStore MediaStore, opts ...ComplaintOption) *ComplaintService {
	s := &ComplaintService{
		store: store,
		media: mediaStore,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit stores every accepted image and creates one complaint referencing
// them in upload order. Rejected images are skipped; with no accepted image
// no row is created.
func (s *ComplaintService) Submit(ctx context.Context, actor *model.User, req *model.SubmitComplaintRequest, uploads []model.Upload) (int64, error) {
	if !auth.Can(actor, auth.ActionSubmit, nil) {
		return 0, model.ErrForbidden
	}
	if err := normalizeSubmission(req); err != nil {
		return 0, err
	}
	if len(uploads) == 0 {
		return 0, fmt.Errorf("%w: at least one photo is required", model.ErrValidation)
	}

	var handles []string
	for _, u := range uploads {
		handle, err := s.media.Save(ctx, u.Data, u.Name)
		if err != nil {
			obs.MediaRejected.WithLabelValues(rejectReason(err)).Inc()
			log.Printf("Skipping upload %q: %v", u.Name, err)
			continue
		}
		handles = append(handles, handle)
	}
	if len(handles) == 0 {
		return 0, fmt.Errorf("%w: no valid images", model.ErrValidation)
	}

	userID := req.UserID
	if userID == nil && actor != nil {
		userID = &actor.ID
	}

	complaint := &model.Complaint{
		PhotoPaths:  handles,
		Location:    req.Location,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Tags:        req.Tags,
		Description: req.Description,
		Status:      model.StatusPending,
		UserID:      userID,
	}
	id, err := s.store.Create(ctx, complaint)
	if err != nil {
		s.removeImages(ctx, handles)
		log.Printf("Failed to create complaint: %v", err)
		return 0, err
	}

	obs.ComplaintsSubmitted.Inc()
	log.Printf("Complaint %d submitted with %d photo(s)", id, len(handles))
	return id, nil
}

func (s *ComplaintService) Get(ctx context.Context, actor *model.User, id int64) (*model.Complaint, error) {
	if !auth.Can(actor, auth.ActionView, nil) {
		return nil, model.ErrForbidden
	}
	return s.store.Get(ctx, id)
}

// List returns a page of complaints matching every filter set in f. The most
// selective filter runs in the gateway; the rest are applied in memory.
func (s *ComplaintService) List(ctx context.Context, actor *model.User, f ListFilter) (*model.ComplaintListResponse, error) {
	if !auth.Can(actor, auth.ActionView, nil) {
		return nil, model.ErrForbidden
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrValidation, f.Status)
	}
	if f.Limit <= 0 {
		f.Limit = repository.DefaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	if f.empty() {
		complaints, err := s.store.List(ctx, f.Limit, f.Offset)
		if err != nil {
			return nil, err
		}
		total, err := s.store.Count(ctx)
		if err != nil {
			return nil, err
		}
		return listResponse(complaints, total), nil
	}

	var (
		complaints []model.Complaint
		err        error
	)
	switch {
	case f.Status != "":
		complaints, err = s.store.FilterByStatus(ctx, f.Status)
	case f.Tag != "":
		complaints, err = s.store.FilterByTag(ctx, f.Tag)
	case f.Query != "":
		complaints, err = s.store.Search(ctx, f.Query)
	default:
		from, to := dateBounds(f.From, f.To, s.now())
		complaints, err = s.store.FilterByDateRange(ctx, from, to)
	}
	if err != nil {
		return nil, err
	}

	matched := lo.Filter(complaints, func(c model.Complaint, _ int) bool {
		return s.matches(c, f)
	})
	return listResponse(page(matched, f.Offset, f.Limit), len(matched)), nil
}

func (s *ComplaintService) ListMine(ctx context.Context, actor *model.User) (*model.ComplaintListResponse, error) {
	if actor == nil {
		return nil, model.ErrUnauthorized
	}
	complaints, err := s.store.ListByUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return listResponse(complaints, len(complaints)), nil
}

func (s *ComplaintService) ListAssigned(ctx context.Context, actor *model.User) (*model.ComplaintListResponse, error) {
	if actor == nil {
		return nil, model.ErrUnauthorized
	}
	complaints, err := s.store.ListAssignedTo(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return listResponse(complaints, len(complaints)), nil
}

// UpdateStatus moves a complaint along the transition table. It returns false
// when the complaint does not exist. A notification is dispatched in the
// background when notifyEmail is set; its failure does not undo the change.
func (s *ComplaintService) UpdateStatus(ctx context.Context, actor *model.User, id int64, status model.ComplaintStatus, notifyEmail string) (bool, error) {
	if !auth.Can(actor, auth.ActionUpdateStatus, nil) {
		return false, model.ErrForbidden
	}
	current, err := s.store.Get(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := checkTransition(current.Status, status); err != nil {
		return false, err
	}

	ok, err := s.store.UpdateStatus(ctx, id, status, actorID(actor))
	if err != nil || !ok {
		return false, err
	}
	obs.StatusTransitions.WithLabelValues(string(current.Status), string(status)).Inc()

	if notifyEmail != "" && s.notifier != nil {
		change := model.StatusChange{
			ComplaintID: id,
			Location:    current.Location,
			OldStatus:   current.Status,
			NewStatus:   status,
			NotifyEmail: strings.TrimSpace(notifyEmail),
			ChangedAt:   s.now(),
		}
		go s.notify(change)
	}
	return true, nil
}

func (s *ComplaintService) notify(change model.StatusChange) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := s.notifier.NotifyStatusChange(ctx, change); err != nil {
		log.Printf("Failed to notify status change for complaint %d: %v", change.ComplaintID, err)
	}
}

func (s *ComplaintService) Assign(ctx context.Context, actor *model.User, id, assigneeID int64) (bool, error) {
	if !auth.Can(actor, auth.ActionAssign, nil) {
		return false, model.ErrForbidden
	}
	if assigneeID <= 0 {
		return false, fmt.Errorf("%w: assignee is required", model.ErrValidation)
	}
	return s.store.Assign(ctx, id, assigneeID, actorID(actor))
}

// BulkUpdateStatus applies status to every listed complaint whose current
// status allows it. Missing complaints and illegal transitions are skipped.
func (s *ComplaintService) BulkUpdateStatus(ctx context.Context, actor *model.User, ids []int64, status model.ComplaintStatus) (int, error) {
	if !auth.Can(actor, auth.ActionUpdateStatus, nil) {
		return 0, model.ErrForbidden
	}
	if !status.Valid() {
		return 0, fmt.Errorf("%w: unknown status %q", model.ErrValidation, status)
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no complaints selected", model.ErrValidation)
	}

	var eligible []int64
	for _, id := range lo.Uniq(ids) {
		c, err := s.store.Get(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if !CanTransition(c.Status, status) {
			log.Printf("Bulk update skips complaint %d: %s to %s not allowed", id, c.Status, status)
			continue
		}
		eligible = append(eligible, id)
	}
	if len(eligible) == 0 {
		return 0, nil
	}
	return s.store.BulkUpdateStatus(ctx, eligible, status, actorID(actor))
}

func (s *ComplaintService) BulkAssign(ctx context.Context, actor *model.User, ids []int64, assigneeID int64) (int, error) {
	if !auth.Can(actor, auth.ActionAssign, nil) {
		return 0, model.ErrForbidden
	}
	if len(ids) == 0 || assigneeID <= 0 {
		return 0, fmt.Errorf("%w: complaints and assignee are required", model.ErrValidation)
	}
	return s.store.BulkAssign(ctx, lo.Uniq(ids), assigneeID, actorID(actor))
}

// Delete removes every image of the complaint and then its row. It returns
// false without touching storage when the complaint does not exist.
func (s *ComplaintService) Delete(ctx context.Context, actor *model.User, id int64) (bool, error) {
	if !auth.Can(actor, auth.ActionDelete, nil) {
		return false, model.ErrForbidden
	}
	c, err := s.store.Get(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.removeImages(ctx, c.PhotoPaths)
	return s.store.Delete(ctx, id)
}

func (s *ComplaintService) Statistics(ctx context.Context, actor *model.User) (*model.Statistics, error) {
	if !auth.Can(actor, auth.ActionViewStats, nil) {
		return nil, model.ErrForbidden
	}
	return s.store.Statistics(ctx)
}

// ExportTable projects every complaint onto the export columns.
func (s *ComplaintService) ExportTable(ctx context.Context, actor *model.User) (model.ExportTable, error) {
	if !auth.Can(actor, auth.ActionExport, nil) {
		return model.ExportTable{}, model.ErrForbidden
	}
	complaints, err := s.store.All(ctx)
	if err != nil {
		return model.ExportTable{}, err
	}
	return export.Table(complaints), nil
}

func (s *ComplaintService) ExtractGPS(raw []byte) model.GPSResponse {
	lat, lon, ok := media.ExtractGPS(raw)
	if !ok {
		return model.GPSResponse{Found: false}
	}
	return model.GPSResponse{Found: true, Latitude: &lat, Longitude: &lon}
}

// BackfillCoordinates geocodes the location of every complaint without
// coordinates and stores the first match. It returns the number updated.
func (s *ComplaintService) BackfillCoordinates(ctx context.Context, actor *model.User) (int, error) {
	if !auth.Can(actor, auth.ActionBackfill, nil) {
		return 0, model.ErrForbidden
	}
	if s.geocoder == nil {
		return 0, fmt.Errorf("%w: geocoding is not configured", model.ErrExternalService)
	}
	missing, err := s.store.ListMissingCoordinates(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, c := range missing {
		places := s.geocoder.Search(ctx, c.Location)
		if len(places) == 0 {
			log.Printf("No coordinates found for complaint %d (%q)", c.ID, c.Location)
			continue
		}
		ok, err := s.store.UpdateCoordinates(ctx, c.ID, places[0].Latitude, places[0].Longitude)
		if err != nil {
			return updated, err
		}
		if ok {
			updated++
		}
	}
	log.Printf("Backfilled coordinates for %d of %d complaint(s)", updated, len(missing))
	return updated, nil
}

// SetNotifier installs the channel used for status change notifications.
func (s *ComplaintService) SetNotifier(n StatusNotifier) {
	s.notifier = n
}

func (s *ComplaintService) DefaultTags() []string {
	return s.defaultTags
}

// OpenImage streams a stored image by handle.
func (s *ComplaintService) OpenImage(ctx context.Context, handle string) (io.ReadCloser, error) {
	return s.media.Open(ctx, handle)
}

func (s *ComplaintService) removeImages(ctx context.Context, handles []string) {
	for _, h := range handles {
		if _, err := s.media.Delete(ctx, h); err != nil {
			log.Printf("Failed to delete image %s: %v", h, err)
		}
	}
}

func (s *ComplaintService) matches(c model.Complaint, f ListFilter) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Tag != "" && !s.tagMatch.Matches(c.Tags, f.Tag) {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(c.Location), q) && !strings.Contains(strings.ToLower(c.Description), q) {
			return false
		}
	}
	if f.From != nil || f.To != nil {
		from, to := dateBounds(f.From, f.To, s.now())
		day := c.CreatedAt.Format(time.DateOnly)
		if day < from.Format(time.DateOnly) || day > to.Format(time.DateOnly) {
			return false
		}
	}
	return true
}

func normalizeSubmission(req *model.SubmitComplaintRequest) error {
	if req == nil {
		return fmt.Errorf("%w: empty request", model.ErrValidation)
	}
	req.Location = strings.TrimSpace(req.Location)
	if req.Location == "" {
		return fmt.Errorf("%w: location is required", model.ErrValidation)
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude must be given together", model.ErrValidation)
	}
	if req.Latitude != nil {
		if *req.Latitude < -90 || *req.Latitude > 90 {
			return fmt.Errorf("%w: latitude %v out of range", model.ErrValidation, *req.Latitude)
		}
		if *req.Longitude < -180 || *req.Longitude > 180 {
			return fmt.Errorf("%w: longitude %v out of range", model.ErrValidation, *req.Longitude)
		}
	}
	req.Tags = lo.Uniq(lo.FilterMap(req.Tags, func(t string, _ int) (string, bool) {
		t = strings.TrimSpace(t)
		return t, t != ""
	}))
	req.Description = strings.TrimSpace(req.Description)
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, media.ErrInvalidExtension):
		return "extension"
	case errors.Is(err, media.ErrTooLarge):
		return "size"
	case errors.Is(err, media.ErrInvalidImage):
		return "decode"
	}
	return "io"
}

func dateBounds(from, to *time.Time, now time.Time) (time.Time, time.Time) {
	start := time.Time{}
	if from != nil {
		start = *from
	}
	end := now
	if to != nil {
		end = *to
	}
	return start, end
}

func page(complaints []model.Complaint, offset, limit int) []model.Complaint {
	if offset >= len(complaints) {
		return []model.Complaint{}
	}
	end := offset + limit
	if end > len(complaints) {
		end = len(complaints)
	}
	return complaints[offset:end]
}

// listResponse wraps one page; total counts every match, not just the page.
func listResponse(complaints []model.Complaint, total int) *model.ComplaintListResponse {
	if complaints == nil {
		complaints = []model.Complaint{}
	}
	return &model.ComplaintListResponse{
		Complaints: complaints,
		Total:      total,
	}
}

func actorID(actor *model.User) *int64 {
	if actor == nil {
		return nil
	}
	id := actor.ID
	return &id
}
