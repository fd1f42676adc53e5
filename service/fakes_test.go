package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/AbdallahFarid/ocr2/models"
)

// memDocStore is an in-memory DocumentStore for tests.
type memDocStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*models.Document
}

func newMemDocStore() *memDocStore {
	return &memDocStore{docs: make(map[uuid.UUID]*models.Document)}
}

func (s *memDocStore) Create(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return errors.New("duplicate id")
	}
	s.docs[doc.ID] = cloneDoc(doc)
	return nil
}

func (s *memDocStore) Update(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; !ok {
		return errors.New("not found")
	}
	s.docs[doc.ID] = cloneDoc(doc)
	return nil
}

func (s *memDocStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	return cloneDoc(doc), nil
}

func (s *memDocStore) List(ctx context.Context, status *models.DocumentStatus, limit, offset int) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Document
	for _, doc := range s.docs {
		if status == nil || doc.Status == *status {
			out = append(out, cloneDoc(doc))
		}
	}
	return out, nil
}

// cloneDoc round-trips through JSON so tests observe persisted state, not
// shared pointers.
func cloneDoc(doc *models.Document) *models.Document {
	data, _ := json.Marshal(doc)
	out := &models.Document{}
	_ = json.Unmarshal(data, out)
	return out
}

// memLedger records ledger appends in order.
type memLedger struct {
	mu           sync.Mutex
	stages       []string
	stageRecords []*models.StageRecord
	decisions    []*models.RoutingDecision
	corrections  []*models.CorrectionEvent
}

func (l *memLedger) AppendStage(ctx context.Context, docID uuid.UUID, stage string, payload interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	l.stages = append(l.stages, stage)
	l.stageRecords = append(l.stageRecords, &models.StageRecord{
		ID:         int64(len(l.stageRecords) + 1),
		DocumentID: docID,
		Stage:      stage,
		Payload:    data,
	})
	return nil
}

func (l *memLedger) AppendDecision(ctx context.Context, decision *models.RoutingDecision) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = append(l.decisions, decision)
	return nil
}

func (l *memLedger) AppendCorrection(ctx context.Context, event *models.CorrectionEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.corrections = append(l.corrections, event)
	return nil
}

func (l *memLedger) ListStages(ctx context.Context, docID uuid.UUID) ([]*models.StageRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.StageRecord
	for _, rec := range l.stageRecords {
		if rec.DocumentID == docID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *memLedger) ListDecisions(ctx context.Context, docID uuid.UUID) ([]*models.RoutingDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.RoutingDecision
	for _, d := range l.decisions {
		if d.DocumentID == docID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (l *memLedger) ListCorrections(ctx context.Context, docID uuid.UUID) ([]*models.CorrectionEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.CorrectionEvent
	for _, ev := range l.corrections {
		if ev.DocumentID == docID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// memTemplateStore is an in-memory TemplateStore.
type memTemplateStore struct {
	mu       sync.Mutex
	versions []*models.BankTemplate
}

func (s *memTemplateStore) SaveVersion(ctx context.Context, tpl *models.BankTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tpl
	s.versions = append(s.versions, &cp)
	return nil
}

func (s *memTemplateStore) ListVersions(ctx context.Context) ([]*models.BankTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.BankTemplate, len(s.versions))
	copy(out, s.versions)
	return out, nil
}
