package post

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/feedgrid/feedgrid/internal/cache"
	"github.com/feedgrid/feedgrid/internal/distribution"
	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/event"
	"github.com/feedgrid/feedgrid/internal/lock"
	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/sequence"
	"github.com/feedgrid/feedgrid/internal/store"
)

// ComponentChecker gates mutations on component state
type ComponentChecker interface {
	EnsureActive(ctx context.Context, tenantID, componentID string) error
}

// Service implements post register/modify/remove and cached point reads.
// Every mutation spans the post row and its reverse row, so each runs under
// a distributed lock keyed by the post id.
type Service struct {
	store     store.Store
	locks     *lock.Manager
	registry  ComponentChecker
	cache     *cache.Manager
	events    *event.Publisher
	sequences sequence.Generator
	snowflake *sequence.Snowflake
	logger    *logging.Logger
}

// NewService creates a post service
func NewService(
	s store.Store,
	locks *lock.Manager,
	registry ComponentChecker,
	cacheManager *cache.Manager,
	events *event.Publisher,
	sequences sequence.Generator,
	snowflake *sequence.Snowflake,
	logger *logging.Logger,
) *Service {
	return &Service{
		store:     s,
		locks:     locks,
		registry:  registry,
		cache:     cacheManager,
		events:    events,
		sequences: sequences,
		snowflake: snowflake,
		logger:    logger,
	}
}

func postLockKey(tenantID, componentID string, postID int64) string {
	return fmt.Sprintf("%s:%s:%d", tenantID, componentID, postID)
}

func sequenceKey(tenantID, componentID, spaceID string) string {
	return fmt.Sprintf("post:%s:%s:%s", tenantID, componentID, spaceID)
}

func cacheKey(tenantID, componentID string, postID int64) string {
	return fmt.Sprintf("%s:%s:%d", tenantID, componentID, postID)
}

// Register creates a post in a space. The post id is a fresh snowflake; the
// slot comes from the space's monotonic sequence so the space's partitions
// fill in registration order. The created event's id is written into the
// post so a later removal can withdraw the fanned-out feed copies.
func (s *Service) Register(ctx context.Context, tenantID, componentID, spaceID, ownerID string, draft Draft) (*Post, error) {
	if draft.Content == "" {
		return nil, errors.InvalidArguments("post content must not be empty")
	}
	if err := s.registry.EnsureActive(ctx, tenantID, componentID); err != nil {
		return nil, err
	}

	postID, err := s.snowflake.NextID()
	if err != nil {
		return nil, err
	}

	var created Post
	err = s.locks.WithLock(ctx, lock.TypePost, postLockKey(tenantID, componentID, postID), func(ctx context.Context) error {
		seq, err := s.sequences.Next(ctx, sequenceKey(tenantID, componentID, spaceID))
		if err != nil {
			return err
		}
		slot, err := distribution.PostSlot(seq)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		p := Post{
			TenantID:    tenantID,
			ComponentID: componentID,
			SpaceID:     spaceID,
			PostID:      postID,
			Slot:        slot,
			OwnerID:     ownerID,
			Title:       draft.Title,
			Content:     draft.Content,
			Status:      StatusActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		eventRec, err := s.newPostEvent(p, event.ActionCreated)
		if err != nil {
			return err
		}
		p.FeedEventID = eventRec.EventID

		if err := s.writePost(ctx, p); err != nil {
			return err
		}

		created = p
		return s.events.Publish(ctx, eventRec)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Get reads one post through the two-tier cache. Callers that need strict
// freshness (the mutation paths) read the store directly instead.
func (s *Service) Get(ctx context.Context, tenantID, componentID string, postID int64) (*Post, error) {
	data, err := s.cache.GetOrLoad(ctx, cache.TypePost, cacheKey(tenantID, componentID, postID), func(ctx context.Context) ([]byte, error) {
		p, err := s.findByID(ctx, tenantID, componentID, postID)
		if err != nil {
			return nil, err
		}
		if p == nil || p.Status == StatusDeleted {
			return nil, errors.NotFound("post %d not found", postID)
		}
		return json.Marshal(p)
	})
	if err != nil {
		return nil, err
	}

	var p Post
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Internal(err)
	}
	return &p, nil
}

// Modify replaces the post's draft content. Only the owner may modify;
// anyone else fails with no_permission. The cache entry is evicted on both
// tiers so other nodes drop their local copies.
func (s *Service) Modify(ctx context.Context, tenantID, componentID string, postID int64, actorID string, draft Draft) (*Post, error) {
	if draft.Content == "" {
		return nil, errors.InvalidArguments("post content must not be empty")
	}
	if err := s.registry.EnsureActive(ctx, tenantID, componentID); err != nil {
		return nil, err
	}

	var modified Post
	err := s.locks.WithLock(ctx, lock.TypePost, postLockKey(tenantID, componentID, postID), func(ctx context.Context) error {
		p, err := s.findByID(ctx, tenantID, componentID, postID)
		if err != nil {
			return err
		}
		if p == nil || p.Status == StatusDeleted {
			return errors.NotFound("post %d not found", postID)
		}
		if p.OwnerID != actorID {
			return errors.NoPermission("actor %s does not own post %d", actorID, postID)
		}

		p.Title = draft.Title
		p.Content = draft.Content
		p.UpdatedAt = time.Now().UTC()

		if err := s.writePost(ctx, *p); err != nil {
			return err
		}
		s.evict(ctx, tenantID, componentID, postID)

		eventRec, err := s.newPostEvent(*p, event.ActionModified)
		if err != nil {
			return err
		}

		modified = *p
		return s.events.Publish(ctx, eventRec)
	})
	if err != nil {
		return nil, err
	}
	return &modified, nil
}

// Remove flips the post to DELETED. Idempotent on an already-removed post.
// The removed event carries the original feed event id so the fanout worker
// can delete the delivered feed copies.
func (s *Service) Remove(ctx context.Context, tenantID, componentID string, postID int64, actorID string) error {
	if err := s.registry.EnsureActive(ctx, tenantID, componentID); err != nil {
		return err
	}

	return s.locks.WithLock(ctx, lock.TypePost, postLockKey(tenantID, componentID, postID), func(ctx context.Context) error {
		p, err := s.findByID(ctx, tenantID, componentID, postID)
		if err != nil {
			return err
		}
		if p == nil {
			return errors.NotFound("post %d not found", postID)
		}
		if p.Status == StatusDeleted {
			return nil
		}
		if p.OwnerID != actorID {
			return errors.NoPermission("actor %s does not own post %d", actorID, postID)
		}

		p.Status = StatusDeleted
		p.UpdatedAt = time.Now().UTC()

		if err := s.writePost(ctx, *p); err != nil {
			return err
		}
		s.evict(ctx, tenantID, componentID, postID)

		eventRec, err := s.newPostEvent(*p, event.ActionRemoved)
		if err != nil {
			return err
		}
		return s.events.Publish(ctx, eventRec)
	})
}

// findByID recovers the slot from the reverse row, then reads the post row.
// Returns nil when no post exists.
func (s *Service) findByID(ctx context.Context, tenantID, componentID string, postID int64) (*Post, error) {
	reverse, err := s.store.Find(ctx, reverseTable, reverseKey(tenantID, componentID, postID))
	if err != nil {
		return nil, err
	}
	if reverse == nil {
		return nil, nil
	}

	spaceID := reverse.Columns["space_id"]
	slot, err := strconv.ParseInt(reverse.Columns["slot"], 10, 64)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("corrupt reverse row for post %d: %w", postID, err))
	}

	p := Post{TenantID: tenantID, ComponentID: componentID, SpaceID: spaceID, Slot: slot, PostID: postID}
	row, err := s.store.Find(ctx, postTable, postKey(p))
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	full := postFromRow(tenantID, componentID, spaceID, slot, postID, row.Columns)
	return &full, nil
}

func (s *Service) writePost(ctx context.Context, p Post) error {
	return s.store.BatchWrite(ctx, []store.Mutation{
		{Table: postTable, Kind: store.Upsert, Row: store.Row{Key: postKey(p), Columns: postColumns(p)}},
		{Table: reverseTable, Kind: store.Upsert, Row: store.Row{Key: reverseKey(p.TenantID, p.ComponentID, p.PostID), Columns: reverseColumns(p)}},
	})
}

func (s *Service) evict(ctx context.Context, tenantID, componentID string, postID int64) {
	if err := s.cache.Evict(ctx, cache.TypePost, cacheKey(tenantID, componentID, postID), cache.StrategyLocal, cache.StrategyGlobal); err != nil {
		s.logger.Warn("Failed to evict post cache entry",
			"tenant_id", tenantID,
			"component_id", componentID,
			"post_id", postID,
			"error", err)
	}
}

func (s *Service) newPostEvent(p Post, action event.Action) (event.Record, error) {
	payload := map[string]interface{}{
		"tenantId":    p.TenantID,
		"componentId": p.ComponentID,
		"spaceId":     p.SpaceID,
		"postId":      p.PostID,
		"ownerId":     p.OwnerID,
		"slot":        p.Slot,
		"feedEventId": p.FeedEventID,
	}

	return event.NewRecord(
		s.snowflake,
		p.TenantID,
		event.ResourcePost,
		p.ComponentID,
		action,
		event.Key("post", p.SpaceID, strconv.FormatInt(p.PostID, 10)),
		payload,
	)
}
