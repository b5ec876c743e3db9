package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/apperr"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/metrics"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type POIStore interface {
	ListPlanDays(ctx context.Context, workspaceID string) ([]store.PlanDay, error)
	ListPOIs(ctx context.Context, workspaceID string) ([]store.POI, error)
	FlushPOIs(ctx context.Context, workspaceID string, upserts []store.POI, deletes []string) error
}

// POICoordinator serves POI reads and edits from Redis. Each workspace keeps
// a hash of records, one ordered id list per plan day and a set of ids
// removed since the last flush. A day's list is authoritative for order.
type POICoordinator struct {
	client *redis.Client
	store  POIStore
}

func NewPOICoordinator(client *redis.Client, s POIStore) *POICoordinator {
	return &POICoordinator{client: client, store: s}
}

type FlushResult struct {
	Committed      []store.POI `json:"committed"`
	NewlyPersisted int         `json:"newlyPersisted"`
	Removed        int         `json:"removed"`
	RemovedIDs     []string    `json:"removedIds"`
	// False when the cache changed while flushing and was kept.
	Evicted bool `json:"evicted"`
}

// GetAll returns every POI of the workspace, loading the cache from Postgres
// first when it is cold.
func (c *POICoordinator) GetAll(ctx context.Context, workspaceID string) ([]store.POI, error) {
	if err := c.ensureHydrated(ctx, workspaceID); err != nil {
		return nil, err
	}
	state, err := readPOIState(ctx, c.client, c.client.TxPipelined, workspaceID)
	if err != nil {
		return nil, err
	}
	return state.list(), nil
}

func (c *POICoordinator) Get(ctx context.Context, workspaceID, poiID string) (store.POI, error) {
	if err := c.ensureHydrated(ctx, workspaceID); err != nil {
		return store.POI{}, err
	}
	item, err := getPOI(ctx, c.client, workspaceID, poiID)
	if err != nil {
		return store.POI{}, err
	}
	return item.POI, nil
}

// Upsert creates a MARKED POI or updates the descriptive fields of an
// existing one. Status, plan day and sequence only change via transitions.
func (c *POICoordinator) Upsert(ctx context.Context, workspaceID string, poi store.POI) (store.POI, error) {
	poi.ID = strings.TrimSpace(poi.ID)
	if poi.ID == "" {
		return store.POI{}, apperr.Validation("poi id is required", nil)
	}
	if !store.IsID(poi.ID) {
		return store.POI{}, apperr.Validation("poi id must be a lowercase uuid", map[string]any{"poiId": poi.ID})
	}
	if poi.Latitude < -90 || poi.Latitude > 90 || poi.Longitude < -180 || poi.Longitude > 180 {
		return store.POI{}, apperr.Validation("coordinates out of range", map[string]any{
			"latitude":  poi.Latitude,
			"longitude": poi.Longitude,
		})
	}
	if err := c.ensureHydrated(ctx, workspaceID); err != nil {
		return store.POI{}, err
	}

	hashKey := poiHashKey(workspaceID)
	var saved CachedPOI
	err := watch(ctx, c.client, "upsert", func(tx *redis.Tx) error {
		item := CachedPOI{POI: poi}
		item.WorkspaceID = workspaceID

		existing, err := getPOI(ctx, tx, workspaceID, poi.ID)
		switch {
		case err == nil:
			item.Status = existing.Status
			item.PlanDayID = existing.PlanDayID
			item.Sequence = existing.Sequence
			item.CreatedBy = existing.CreatedBy
		case apperr.IsNotFound(err):
			item.Status = store.StatusMarked
			item.PlanDayID = nil
			item.Sequence = 0
		default:
			return err
		}
		item.IsPersisted = false

		value, err := encode(item)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hashKey, item.ID, value)
			pipe.SRem(ctx, poiRemovedKey(workspaceID), item.ID)
			return nil
		})
		saved = item
		return err
	}, hashKey)
	if err != nil {
		return store.POI{}, err
	}
	return saved.POI, nil
}

// HasPlanDay returns NotFound unless planDayID is one of the workspace's plan
// days.
func (c *POICoordinator) HasPlanDay(ctx context.Context, workspaceID, planDayID string) error {
	if err := c.ensureHydrated(ctx, workspaceID); err != nil {
		return err
	}
	return requirePlanDay(ctx, c.client, workspaceID, planDayID)
}

// Remove drops the POI from the cache and remembers its id so the next flush
// deletes it. The removed record is returned as it was.
func (c *POICoordinator) Remove(ctx context.Context, workspaceID, poiID string) (store.POI, error) {
	if err := c.ensureHydrated(ctx, workspaceID); err != nil {
		return store.POI{}, err
	}

	hashKey := poiHashKey(workspaceID)
	var prior CachedPOI
	err := watch(ctx, c.client, "remove", func(tx *redis.Tx) error {
		item, err := getPOI(ctx, tx, workspaceID, poiID)
		if err != nil {
			return err
		}

		changed := map[string]CachedPOI{}
		var (
			dayID     string
			remaining []string
		)
		if item.PlanDayID != nil {
			dayID = *item.PlanDayID
			order, err := tx.LRange(ctx, scheduledKey(dayID), 0, -1).Result()
			if err != nil {
				return fmt.Errorf("read plan day order: %w", err)
			}
			renumbered, err := c.renumber(ctx, tx, workspaceID, dayID, without(order, poiID), changed)
			if err != nil {
				return err
			}
			remaining = ids(renumbered)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, hashKey, poiID)
			pipe.SAdd(ctx, poiRemovedKey(workspaceID), poiID)
			if err := writeRecords(ctx, pipe, hashKey, changed); err != nil {
				return err
			}
			if dayID != "" {
				replaceList(ctx, pipe, scheduledKey(dayID), remaining)
			}
			return nil
		})
		prior = item
		return err
	}, hashKey)
	if err != nil {
		return store.POI{}, err
	}
	return prior.POI, nil
}

// TransitionToScheduled appends the POI to the plan day's order and returns
// it with the resulting order. A POI scheduled on another day moves.
func (c *POICoordinator) TransitionToScheduled(ctx context.Context, workspaceID, planDayID, poiID string) (store.POI, []string, error) {
	if err := c.ensureHydrated(ctx, workspaceID); err != nil {
		return store.POI{}, nil, err
	}

	hashKey := poiHashKey(workspaceID)
	targetKey := scheduledKey(planDayID)
	var (
		result store.POI
		order  []string
	)
	err := watch(ctx, c.client, "schedule", func(tx *redis.Tx) error {
		if err := requirePlanDay(ctx, tx, workspaceID, planDayID); err != nil {
			return err
		}
		item, err := getPOI(ctx, tx, workspaceID, poiID)
		if err != nil {
			return err
		}
		target, err := tx.LRange(ctx, targetKey, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("read plan day order: %w", err)
		}
		if item.Status == store.StatusScheduled && item.PlanDayID != nil && *item.PlanDayID == planDayID {
			result, order = item.POI, target
			return nil
		}

		changed := map[string]CachedPOI{}
		var (
			sourceDay string
			source    []string
		)
		if item.PlanDayID != nil {
			sourceDay = *item.PlanDayID
			current, err := tx.LRange(ctx, scheduledKey(sourceDay), 0, -1).Result()
			if err != nil {
				return fmt.Errorf("read plan day order: %w", err)
			}
			renumbered, err := c.renumber(ctx, tx, workspaceID, sourceDay, without(current, poiID), changed)
			if err != nil {
				return err
			}
			source = ids(renumbered)
		}

		day := planDayID
		item.Status = store.StatusScheduled
		item.PlanDayID = &day
		item.IsPersisted = false
		changed[poiID] = item

		renumbered, err := c.renumber(ctx, tx, workspaceID, planDayID, append(without(target, poiID), poiID), changed)
		if err != nil {
			return err
		}
		target = ids(renumbered)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := writeRecords(ctx, pipe, hashKey, changed); err != nil {
				return err
			}
			replaceList(ctx, pipe, targetKey, target)
			if sourceDay != "" {
				replaceList(ctx, pipe, scheduledKey(sourceDay), source)
			}
			return nil
		})
		result, order = changed[poiID].POI, target
		return err
	}, hashKey, planDaysKey(workspaceID), targetKey)
	if err != nil {
		return store.POI{}, nil, err
	}
	return result, order, nil
}

// TransitionToMarked takes the POI off the plan day and renumbers the rest.
func (c *POICoordinator) TransitionToMarked(ctx context.Context, workspaceID, planDayID, poiID string) (store.POI, []string, error) {
	if err := c.ensureHydrated(ctx, workspaceID); err != nil {
		return store.POI{}, nil, err
	}

	hashKey := poiHashKey(workspaceID)
	listKey := scheduledKey(planDayID)
	var (
		result store.POI
		order  []string
	)
	err := watch(ctx, c.client, "unschedule", func(tx *redis.Tx) error {
		item, err := getPOI(ctx, tx, workspaceID, poiID)
		if err != nil {
			return err
		}
		current, err := tx.LRange(ctx, listKey, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("read plan day order: %w", err)
		}
		if item.Status == store.StatusMarked {
			result, order = item.POI, current
			return nil
		}
		if item.PlanDayID == nil || *item.PlanDayID != planDayID {
			return apperr.Validation(fmt.Sprintf("poi %s is not scheduled on plan day %s", poiID, planDayID), map[string]any{
				"poiId":     poiID,
				"planDayId": planDayID,
			})
		}

		item.Status = store.StatusMarked
		item.PlanDayID = nil
		item.Sequence = 0
		item.IsPersisted = false
		changed := map[string]CachedPOI{poiID: item}

		renumbered, err := c.renumber(ctx, tx, workspaceID, planDayID, without(current, poiID), changed)
		if err != nil {
			return err
		}
		remaining := ids(renumbered)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := writeRecords(ctx, pipe, hashKey, changed); err != nil {
				return err
			}
			replaceList(ctx, pipe, listKey, remaining)
			return nil
		})
		result, order = item.POI, remaining
		return err
	}, hashKey, listKey)
	if err != nil {
		return store.POI{}, nil, err
	}
	return result, order, nil
}

// Reorder replaces the plan day's order. poiIDs must be a permutation of
// the POIs currently scheduled on that day.
func (c *POICoordinator) Reorder(ctx context.Context, workspaceID, planDayID string, poiIDs []string) ([]store.POI, error) {
	if len(poiIDs) == 0 {
		return nil, apperr.Validation("reorder requires at least one poi id", map[string]any{"planDayId": planDayID})
	}
	seen := make(map[string]bool, len(poiIDs))
	for _, id := range poiIDs {
		if id == "" || seen[id] {
			return nil, apperr.Validation("reorder ids must be unique and non-empty", map[string]any{
				"planDayId": planDayID,
				"poiIds":    poiIDs,
			})
		}
		seen[id] = true
	}
	if err := c.ensureHydrated(ctx, workspaceID); err != nil {
		return nil, err
	}

	hashKey := poiHashKey(workspaceID)
	listKey := scheduledKey(planDayID)
	var result []store.POI
	err := watch(ctx, c.client, "reorder", func(tx *redis.Tx) error {
		if err := requirePlanDay(ctx, tx, workspaceID, planDayID); err != nil {
			return err
		}
		current, err := tx.LRange(ctx, listKey, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("read plan day order: %w", err)
		}
		if !samePermutation(current, seen) {
			return apperr.Validation("reorder must list every poi scheduled on the plan day exactly once", map[string]any{
				"planDayId": planDayID,
				"expected":  current,
				"got":       poiIDs,
			})
		}

		changed := map[string]CachedPOI{}
		renumbered, err := c.renumber(ctx, tx, workspaceID, planDayID, poiIDs, changed)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := writeRecords(ctx, pipe, hashKey, changed); err != nil {
				return err
			}
			replaceList(ctx, pipe, listKey, ids(renumbered))
			return nil
		})
		result = make([]store.POI, 0, len(renumbered))
		for _, item := range renumbered {
			result = append(result, item.POI)
		}
		return err
	}, hashKey, planDaysKey(workspaceID), listKey)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Flush commits the cached workspace to Postgres in one transaction and then
// evicts it. When the cache changed meanwhile it is kept; the next flush
// upserts the same ids again.
func (c *POICoordinator) Flush(ctx context.Context, workspaceID string) (result FlushResult, err error) {
	ctx, span := otel.Tracer("cache").Start(ctx, "cache.POICoordinator.Flush",
		trace.WithAttributes(attribute.String("workspace_id", workspaceID)),
	)
	timer := prometheus.NewTimer(metrics.FlushDuration.WithLabelValues("poi"))
	defer func() {
		timer.ObserveDuration()
		endSpan(span, err)
	}()

	hashKey := poiHashKey(workspaceID)
	removedKey := poiRemovedKey(workspaceID)
	daysKey := planDaysKey(workspaceID)
	result.Committed = []store.POI{}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		state, err := readPOIState(ctx, tx, tx.Pipelined, workspaceID)
		if err != nil {
			return err
		}
		if len(state.records) == 0 && len(state.removed) == 0 {
			return nil
		}

		upserts := state.list()
		var invalid []string
		newly := 0
		for _, item := range upserts {
			if !item.Valid() {
				invalid = append(invalid, item.ID)
			}
			if !state.records[item.ID].IsPersisted {
				newly++
			}
		}
		if len(invalid) > 0 {
			return apperr.Validation("cached pois violate the status invariant; nothing was flushed", map[string]any{
				"poiIds": invalid,
			})
		}

		if err := c.store.FlushPOIs(ctx, workspaceID, upserts, state.removed); err != nil {
			if errors.Is(err, store.ErrForeignID) {
				log.Printf("cache: flush of workspace %s refused: %v", workspaceID, err)
				return apperr.Conflict("a cached poi id belongs to another workspace; nothing was flushed")
			}
			return fmt.Errorf("flush pois: %w", err)
		}
		result = FlushResult{Committed: upserts, NewlyPersisted: newly, Removed: len(state.removed), RemovedIDs: state.removed}

		keys := []string{hashKey, removedKey, daysKey}
		for _, dayID := range state.dayIDs {
			keys = append(keys, scheduledKey(dayID))
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			return nil
		})
		if err == nil {
			result.Evicted = true
		}
		return err
	}, hashKey, removedKey, daysKey)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		log.Printf("cache: workspace %s changed during flush; keeping cache for the next flush", workspaceID)
		metrics.Flushes.WithLabelValues("poi", "kept").Inc()
		err = nil
	case err != nil:
		metrics.Flushes.WithLabelValues("poi", "error").Inc()
		return FlushResult{}, err
	case len(result.Committed) == 0 && result.Removed == 0:
		metrics.Flushes.WithLabelValues("poi", "noop").Inc()
	default:
		metrics.Flushes.WithLabelValues("poi", "ok").Inc()
	}
	metrics.NewlyPersisted.WithLabelValues("poi").Add(float64(result.NewlyPersisted))
	span.SetAttributes(
		attribute.Int("committed", len(result.Committed)),
		attribute.Int("newly_persisted", result.NewlyPersisted),
		attribute.Int("removed", result.Removed),
	)
	return result, nil
}

// Evict drops every POI key of the workspace without flushing.
func (c *POICoordinator) Evict(ctx context.Context, workspaceID string, planDayIDs []string) error {
	known, err := c.client.SMembers(ctx, planDaysKey(workspaceID)).Result()
	if err != nil {
		return fmt.Errorf("read cached plan days: %w", err)
	}
	keys := []string{poiHashKey(workspaceID), poiRemovedKey(workspaceID), planDaysKey(workspaceID)}
	for _, dayID := range append(known, planDayIDs...) {
		keys = append(keys, scheduledKey(dayID))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("evict poi cache: %w", err)
	}
	return nil
}

func (c *POICoordinator) ensureHydrated(ctx context.Context, workspaceID string) error {
	n, err := c.client.Exists(ctx, poiHashKey(workspaceID), planDaysKey(workspaceID)).Result()
	if err != nil {
		return fmt.Errorf("check poi cache: %w", err)
	}
	if n > 0 {
		return nil
	}
	return c.hydrate(ctx, workspaceID)
}

func (c *POICoordinator) hydrate(ctx context.Context, workspaceID string) (err error) {
	ctx, span := otel.Tracer("cache").Start(ctx, "cache.POICoordinator.hydrate",
		trace.WithAttributes(attribute.String("workspace_id", workspaceID)),
	)
	defer func() { endSpan(span, err) }()

	hashKey := poiHashKey(workspaceID)
	daysKey := planDaysKey(workspaceID)
	removedKey := poiRemovedKey(workspaceID)
	loaded := 0
	err = watch(ctx, c.client, "hydrate", func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, hashKey, daysKey).Result()
		if err != nil {
			return fmt.Errorf("check poi cache: %w", err)
		}
		if n > 0 {
			return nil
		}
		// Read Postgres only once the keys are watched, so a flush that
		// evicts meanwhile makes this attempt fail instead of caching stale rows.
		days, err := c.store.ListPlanDays(ctx, workspaceID)
		if err != nil {
			return err
		}
		pois, err := c.store.ListPOIs(ctx, workspaceID)
		if err != nil {
			return err
		}
		removed, err := tx.SMembers(ctx, removedKey).Result()
		if err != nil {
			return fmt.Errorf("read removed pois: %w", err)
		}
		tombstoned := make(map[string]bool, len(removed))
		for _, id := range removed {
			tombstoned[id] = true
		}

		fields := make(map[string]any, len(pois))
		orders := make(map[string][]store.POI)
		for _, poi := range pois {
			if tombstoned[poi.ID] {
				continue
			}
			value, err := encode(CachedPOI{POI: poi, IsPersisted: true})
			if err != nil {
				return err
			}
			fields[poi.ID] = value
			if poi.Status == store.StatusScheduled && poi.PlanDayID != nil {
				orders[*poi.PlanDayID] = append(orders[*poi.PlanDayID], poi)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			dayIDs := make([]any, 0, len(days))
			for _, day := range days {
				pipe.Del(ctx, scheduledKey(day.ID))
				dayIDs = append(dayIDs, day.ID)
			}
			if len(fields) > 0 {
				pipe.HSet(ctx, hashKey, fields)
			}
			for dayID, members := range orders {
				sort.SliceStable(members, func(i, j int) bool { return members[i].Sequence < members[j].Sequence })
				list := make([]string, 0, len(members))
				for _, poi := range members {
					list = append(list, poi.ID)
				}
				replaceList(ctx, pipe, scheduledKey(dayID), list)
			}
			if len(dayIDs) > 0 {
				pipe.SAdd(ctx, daysKey, dayIDs...)
			}
			return nil
		})
		loaded = len(fields)
		return err
	}, hashKey, daysKey, removedKey)
	if err != nil {
		return err
	}

	metrics.CacheHydrations.WithLabelValues("poi").Inc()
	span.SetAttributes(attribute.Int("loaded", loaded))
	return nil
}

// renumber assigns sequence = position+1 to every id of order on planDayID.
// Records whose fields change are added to changed and marked unpersisted.
// Ids missing from the hash are dropped from the returned order.
func (c *POICoordinator) renumber(ctx context.Context, tx *redis.Tx, workspaceID, planDayID string, order []string, changed map[string]CachedPOI) ([]CachedPOI, error) {
	var fetch []string
	for _, id := range order {
		if _, ok := changed[id]; !ok {
			fetch = append(fetch, id)
		}
	}
	current := make(map[string]CachedPOI, len(order))
	if len(fetch) > 0 {
		values, err := tx.HMGet(ctx, poiHashKey(workspaceID), fetch...).Result()
		if err != nil {
			return nil, fmt.Errorf("read scheduled pois: %w", err)
		}
		for i, value := range values {
			raw, ok := value.(string)
			if !ok {
				continue
			}
			item, err := decodePOI(raw)
			if err != nil {
				return nil, err
			}
			current[fetch[i]] = item
		}
	}
	for id, item := range changed {
		current[id] = item
	}

	out := make([]CachedPOI, 0, len(order))
	for _, id := range order {
		item, ok := current[id]
		if !ok {
			continue
		}
		sequence := len(out) + 1
		modified := false
		if item.Status != store.StatusScheduled || item.PlanDayID == nil || *item.PlanDayID != planDayID || item.Sequence != sequence {
			day := planDayID
			item.Status = store.StatusScheduled
			item.PlanDayID = &day
			item.Sequence = sequence
			item.IsPersisted = false
			modified = true
		}
		if _, touched := changed[id]; touched || modified {
			changed[id] = item
		}
		out = append(out, item)
	}
	return out, nil
}

type poiState struct {
	records map[string]CachedPOI
	removed []string
	dayIDs  []string
}

// list returns MARKED POIs first, then scheduled ones by day and sequence.
func (s poiState) list() []store.POI {
	items := make([]store.POI, 0, len(s.records))
	for _, item := range s.records {
		items = append(items, item.POI)
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if (a.PlanDayID == nil) != (b.PlanDayID == nil) {
			return a.PlanDayID == nil
		}
		if a.PlanDayID != nil && *a.PlanDayID != *b.PlanDayID {
			return *a.PlanDayID < *b.PlanDayID
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.ID < b.ID
	})
	return items
}

type pipelineFunc func(context.Context, func(redis.Pipeliner) error) ([]redis.Cmder, error)

type setReader interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// readPOIState loads records, tombstones and day orders. Sequences are taken
// from list position.
func readPOIState(ctx context.Context, r setReader, exec pipelineFunc, workspaceID string) (poiState, error) {
	dayIDs, err := r.SMembers(ctx, planDaysKey(workspaceID)).Result()
	if err != nil {
		return poiState{}, fmt.Errorf("read cached plan days: %w", err)
	}

	var (
		hashCmd    *redis.MapStringStringCmd
		removedCmd *redis.StringSliceCmd
		listCmds   = make(map[string]*redis.StringSliceCmd, len(dayIDs))
	)
	if _, err := exec(ctx, func(pipe redis.Pipeliner) error {
		hashCmd = pipe.HGetAll(ctx, poiHashKey(workspaceID))
		removedCmd = pipe.SMembers(ctx, poiRemovedKey(workspaceID))
		for _, dayID := range dayIDs {
			listCmds[dayID] = pipe.LRange(ctx, scheduledKey(dayID), 0, -1)
		}
		return nil
	}); err != nil {
		return poiState{}, fmt.Errorf("read poi cache: %w", err)
	}

	state := poiState{
		records: make(map[string]CachedPOI, len(hashCmd.Val())),
		removed: removedCmd.Val(),
		dayIDs:  dayIDs,
	}
	sort.Strings(state.removed)
	for id, raw := range hashCmd.Val() {
		item, err := decodePOI(raw)
		if err != nil {
			return poiState{}, err
		}
		state.records[id] = item
	}
	for dayID, cmd := range listCmds {
		position := 0
		for _, id := range cmd.Val() {
			item, ok := state.records[id]
			if !ok || item.PlanDayID == nil || *item.PlanDayID != dayID {
				continue
			}
			position++
			item.Sequence = position
			state.records[id] = item
		}
	}
	return state, nil
}

type hashReader interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func getPOI(ctx context.Context, r hashReader, workspaceID, poiID string) (CachedPOI, error) {
	raw, err := r.HGet(ctx, poiHashKey(workspaceID), poiID).Result()
	if errors.Is(err, redis.Nil) {
		return CachedPOI{}, apperr.NotFound("poi", poiID)
	}
	if err != nil {
		return CachedPOI{}, fmt.Errorf("read cached poi: %w", err)
	}
	return decodePOI(raw)
}

type setMemberReader interface {
	SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd
}

func requirePlanDay(ctx context.Context, r setMemberReader, workspaceID, planDayID string) error {
	known, err := r.SIsMember(ctx, planDaysKey(workspaceID), planDayID).Result()
	if err != nil {
		return fmt.Errorf("check plan day: %w", err)
	}
	if !known {
		return apperr.NotFound("planDay", planDayID)
	}
	return nil
}

func writeRecords(ctx context.Context, pipe redis.Pipeliner, hashKey string, records map[string]CachedPOI) error {
	if len(records) == 0 {
		return nil
	}
	fields := make(map[string]any, len(records))
	for id, item := range records {
		value, err := encode(item)
		if err != nil {
			return err
		}
		fields[id] = value
	}
	pipe.HSet(ctx, hashKey, fields)
	return nil
}

func replaceList(ctx context.Context, pipe redis.Pipeliner, key string, members []string) {
	pipe.Del(ctx, key)
	if len(members) == 0 {
		return
	}
	values := make([]any, 0, len(members))
	for _, id := range members {
		values = append(values, id)
	}
	pipe.RPush(ctx, key, values...)
}

func without(list []string, id string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != id {
			out = append(out, item)
		}
	}
	return out
}

func ids(items []CachedPOI) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func samePermutation(current []string, wanted map[string]bool) bool {
	if len(current) != len(wanted) {
		return false
	}
	for _, id := range current {
		if !wanted[id] {
			return false
		}
	}
	return true
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
