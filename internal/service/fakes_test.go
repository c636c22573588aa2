package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"pathpatrol/internal/geocode"
	"pathpatrol/internal/model"
	"pathpatrol/internal/repository"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory ComplaintStore with first-write resolution.
type memoryStore struct {
	mu        sync.Mutex
	rows      map[int64]*model.Complaint
	nextID    int64
	tagMatch  repository.TagMatch
	createErr error
	now       func() time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[int64]*model.Complaint), now: time.Now}
}

func (m *memoryStore) Create(_ context.Context, c *model.Complaint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.nextID++
	row := *c
	row.ID = m.nextID
	row.CreatedAt = m.now().Add(-2 * time.Hour)
	m.rows[row.ID] = &row
	c.ID, c.CreatedAt = row.ID, row.CreatedAt
	return row.ID, nil
}

func (m *memoryStore) Get(_ context.Context, id int64) (*model.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("complaint %d: %w", id, model.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *memoryStore) collect(keep func(c *model.Complaint) bool) []model.Complaint {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Complaint
	for _, c := range m.rows {
		if keep(c) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *memoryStore) List(_ context.Context, limit, offset int) ([]model.Complaint, error) {
	return page(m.collect(func(*model.Complaint) bool { return true }), offset, limit), nil
}

func (m *memoryStore) All(_ context.Context) ([]model.Complaint, error) {
	return m.collect(func(*model.Complaint) bool { return true }), nil
}

func (m *memoryStore) FilterByTag(_ context.Context, tag string) ([]model.Complaint, error) {
	return m.collect(func(c *model.Complaint) bool { return m.tagMatch.Matches(c.Tags, tag) }), nil
}

func (m *memoryStore) FilterByStatus(_ context.Context, status model.ComplaintStatus) ([]model.Complaint, error) {
	return m.collect(func(c *model.Complaint) bool { return c.Status == status }), nil
}

func (m *memoryStore) Search(_ context.Context, term string) ([]model.Complaint, error) {
	term = strings.ToLower(term)
	return m.collect(func(c *model.Complaint) bool {
		return strings.Contains(strings.ToLower(c.Location), term) || strings.Contains(strings.ToLower(c.Description), term)
	}), nil
}

func (m *memoryStore) FilterByDateRange(_ context.Context, start, end time.Time) ([]model.Complaint, error) {
	from, to := start.Format(time.DateOnly), end.Format(time.DateOnly)
	return m.collect(func(c *model.Complaint) bool {
		day := c.CreatedAt.Format(time.DateOnly)
		return day >= from && day <= to
	}), nil
}

func (m *memoryStore) ListByUser(_ context.Context, userID int64) ([]model.Complaint, error) {
	return m.collect(func(c *model.Complaint) bool { return c.UserID != nil && *c.UserID == userID }), nil
}

func (m *memoryStore) ListAssignedTo(_ context.Context, userID int64) ([]model.Complaint, error) {
	return m.collect(func(c *model.Complaint) bool { return c.AssignedTo != nil && *c.AssignedTo == userID }), nil
}

func (m *memoryStore) ListMissingCoordinates(_ context.Context) ([]model.Complaint, error) {
	return m.collect(func(c *model.Complaint) bool { return c.Latitude == nil || c.Longitude == nil }), nil
}

func (m *memoryStore) UpdateStatus(_ context.Context, id int64, status model.ComplaintStatus, updatedBy *int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return false, nil
	}
	c.Status = status
	c.UpdatedBy = updatedBy
	if status == model.StatusResolved && c.ResolvedAt == nil {
		now := m.now()
		hours := now.Sub(c.CreatedAt).Hours()
		c.ResolvedAt = &now
		c.ResolutionTimeHours = &hours
	}
	return true, nil
}

func (m *memoryStore) Assign(_ context.Context, id, assigneeID int64, updatedBy *int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return false, nil
	}
	c.AssignedTo = &assigneeID
	c.UpdatedBy = updatedBy
	return true, nil
}

func (m *memoryStore) UpdateCoordinates(_ context.Context, id int64, lat, lon float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return false, nil
	}
	c.Latitude, c.Longitude = &lat, &lon
	return true, nil
}

func (m *memoryStore) Delete(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[id]
	delete(m.rows, id)
	return ok, nil
}

func (m *memoryStore) BulkUpdateStatus(ctx context.Context, ids []int64, status model.ComplaintStatus, updatedBy *int64) (int, error) {
	n := 0
	for _, id := range ids {
		ok, _ := m.UpdateStatus(ctx, id, status, updatedBy)
		if ok {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) BulkAssign(ctx context.Context, ids []int64, assigneeID int64, updatedBy *int64) (int, error) {
	n := 0
	for _, id := range ids {
		ok, _ := m.Assign(ctx, id, assigneeID, updatedBy)
		if ok {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) Statistics(_ context.Context) (*model.Statistics, error) {
	all := m.collect(func(*model.Complaint) bool { return true })
	stats := &model.Statistics{ByStatus: make(map[model.ComplaintStatus]int), Timeline: []model.DayCount{}}
	var tagSets [][]string
	for _, c := range all {
		stats.Total++
		stats.ByStatus[c.Status]++
		tagSets = append(tagSets, c.Tags)
	}
	stats.ByTag = repository.CountTags(tagSets)
	return stats, nil
}

func (m *memoryStore) Count(context.Context) (int, error) {
	return m.count(), nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// memoryBackend keeps stored images in a map.
type memoryBackend struct {
	mu      sync.Mutex
	objects map[string][]byte
	order   []string
	putErr  error
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{objects: make(map[string][]byte)}
}

func (b *memoryBackend) Put(_ context.Context, handle string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.objects[handle] = data
	b.order = append(b.order, handle)
	return nil
}

func (b *memoryBackend) Open(_ context.Context, handle string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[handle]
	if !ok {
		return nil, model.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memoryBackend) Delete(_ context.Context, handle string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[handle]
	delete(b.objects, handle)
	return ok, nil
}

func (b *memoryBackend) has(handle string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[handle]
	return ok
}

// putOrder lists stored handles in the order they were written.
func (b *memoryBackend) putOrder() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.order...)
}

// width decodes the stored image behind handle.
func (b *memoryBackend) width(t *testing.T, handle string) int {
	t.Helper()
	b.mu.Lock()
	data := b.objects[handle]
	b.mu.Unlock()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width
}

func (b *memoryBackend) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyStatusChange(ctx context.Context, change model.StatusChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

type MockGeocoder struct {
	mock.Mock
}

func (m *MockGeocoder) Search(ctx context.Context, query string) []geocode.Place {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]geocode.Place)
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
