package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/repository"
)

// reservedProfileFields are maintained by ProfileService and cannot be set
// through Upsert's fields argument.
var reservedProfileFields = map[string]bool{
	"id": true, "uid": true, "email": true, "lastUpdated": true, "isActive": true,
}

// ProfileService manages profiles/{uid} documents.
type ProfileService struct {
	docs   repository.DocumentStore
	logger *slog.Logger
	now    clock
}

func NewProfileService(docs repository.DocumentStore, logger *slog.Logger) *ProfileService {
	return &ProfileService{docs: docs, logger: logger}
}

// Upsert merges fields into the profile and stamps email, lastUpdated and
// isActive. Existing fields not named in fields are kept.
func (s *ProfileService) Upsert(ctx context.Context, uid, email string, fields map[string]any) (*model.Profile, error) {
	if uid == "" {
		return nil, apperror.ValidationFailed("uid", "uid is required")
	}

	patch := repository.Document{}
	for k, v := range fields {
		if reservedProfileFields[k] {
			continue
		}
		patch[k] = v
	}
	patch["uid"] = uid
	patch["email"] = email
	patch["lastUpdated"] = s.now.now()
	patch["isActive"] = true

	if err := s.docs.MergeDocument(ctx, model.CollectionProfiles, uid, patch); err != nil {
		return nil, fmt.Errorf("service/profile: merging %s: %w", uid, err)
	}
	return s.Get(ctx, uid)
}

// Get returns the profile, or a not-found error when none was written.
func (s *ProfileService) Get(ctx context.Context, uid string) (*model.Profile, error) {
	doc, err := s.docs.GetDocument(ctx, model.CollectionProfiles, uid)
	if err != nil {
		return nil, fmt.Errorf("service/profile: getting %s: %w", uid, err)
	}
	return profileFromDocument(uid, doc), nil
}

func profileFromDocument(uid string, doc repository.Document) *model.Profile {
	p := &model.Profile{UID: uid}
	p.Email, _ = doc["email"].(string)
	p.Name, _ = doc["name"].(string)
	p.IsActive, _ = doc["isActive"].(bool)
	if ts, ok := doc["lastUpdated"].(string); ok {
		p.LastUpdated, _ = time.Parse(time.RFC3339Nano, ts)
	}
	for k, v := range doc {
		if reservedProfileFields[k] || k == "name" {
			continue
		}
		if p.Extra == nil {
			p.Extra = map[string]any{}
		}
		p.Extra[k] = v
	}
	return p
}
