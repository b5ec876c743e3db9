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
	"go.opentelemetry.io/otel/trace"
)

type ConnectionStore interface {
	ListPlanDays(ctx context.Context, workspaceID string) ([]store.PlanDay, error)
	ListConnections(ctx context.Context, planDayIDs []string) ([]store.POIConnection, error)
	FlushConnections(ctx context.Context, upserts []store.POIConnection, deletes []string) error
}

// ConnectionCoordinator caches itinerary edges per plan day.
type ConnectionCoordinator struct {
	client *redis.Client
	store  ConnectionStore
}

func NewConnectionCoordinator(client *redis.Client, s ConnectionStore) *ConnectionCoordinator {
	return &ConnectionCoordinator{client: client, store: s}
}

type ConnectionFlushResult struct {
	Committed      []store.POIConnection `json:"committed"`
	NewlyPersisted int                   `json:"newlyPersisted"`
	Removed        int                   `json:"removed"`
	Evicted        bool                  `json:"evicted"`
}

func (c *ConnectionCoordinator) GetAll(ctx context.Context, planDayID string) ([]store.POIConnection, error) {
	if err := c.hydrateDays(ctx, []string{planDayID}); err != nil {
		return nil, err
	}
	raw, err := c.client.HGetAll(ctx, connectionHashKey(planDayID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read connection cache: %w", err)
	}
	items, err := decodeConnections(raw)
	if err != nil {
		return nil, err
	}
	return plain(items), nil
}

// HydrateAll returns the connections of every plan day of the workspace.
// Days not cached yet are loaded from Postgres in a single query.
func (c *ConnectionCoordinator) HydrateAll(ctx context.Context, workspaceID string) ([]store.POIConnection, error) {
	days, err := c.store.ListPlanDays(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	dayIDs := make([]string, 0, len(days))
	for _, day := range days {
		dayIDs = append(dayIDs, day.ID)
	}
	if err := c.hydrateDays(ctx, dayIDs); err != nil {
		return nil, err
	}

	cmds := make([]*redis.MapStringStringCmd, 0, len(dayIDs))
	if _, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range dayIDs {
			cmds = append(cmds, pipe.HGetAll(ctx, connectionHashKey(id)))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("read connection cache: %w", err)
	}

	all := make([]store.POIConnection, 0)
	for _, cmd := range cmds {
		items, err := decodeConnections(cmd.Val())
		if err != nil {
			return nil, err
		}
		all = append(all, plain(items)...)
	}
	return all, nil
}

func (c *ConnectionCoordinator) Upsert(ctx context.Context, connection store.POIConnection) (store.POIConnection, error) {
	connection.ID = strings.TrimSpace(connection.ID)
	if connection.ID == "" || connection.PlanDayID == "" {
		return store.POIConnection{}, apperr.Validation("connection id and planDayId are required", nil)
	}
	if connection.PrevPOIID == "" || connection.NextPOIID == "" || connection.PrevPOIID == connection.NextPOIID {
		return store.POIConnection{}, apperr.Validation("a connection joins two distinct pois", map[string]any{
			"prevPoiId": connection.PrevPOIID,
			"nextPoiId": connection.NextPOIID,
		})
	}
	for _, id := range []string{connection.ID, connection.PlanDayID, connection.PrevPOIID, connection.NextPOIID} {
		if !store.IsID(id) {
			return store.POIConnection{}, apperr.Validation("connection ids must be lowercase uuids", map[string]any{"id": id})
		}
	}
	if (connection.Distance != nil && *connection.Distance < 0) || (connection.Duration != nil && *connection.Duration < 0) {
		return store.POIConnection{}, apperr.Validation("distance and duration cannot be negative", nil)
	}
	if err := c.hydrateDays(ctx, []string{connection.PlanDayID}); err != nil {
		return store.POIConnection{}, err
	}

	value, err := encode(CachedConnection{POIConnection: connection})
	if err != nil {
		return store.POIConnection{}, err
	}
	if _, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, connectionHashKey(connection.PlanDayID), connection.ID, value)
		pipe.SRem(ctx, connectionRemovedKey(connection.PlanDayID), connection.ID)
		return nil
	}); err != nil {
		return store.POIConnection{}, fmt.Errorf("cache connection: %w", err)
	}
	return connection, nil
}

func (c *ConnectionCoordinator) Remove(ctx context.Context, planDayID, connectionID string) (store.POIConnection, error) {
	if err := c.hydrateDays(ctx, []string{planDayID}); err != nil {
		return store.POIConnection{}, err
	}

	hashKey := connectionHashKey(planDayID)
	var prior store.POIConnection
	err := watch(ctx, c.client, "disconnect", func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, hashKey, connectionID).Result()
		if errors.Is(err, redis.Nil) {
			return apperr.NotFound("connection", connectionID)
		}
		if err != nil {
			return fmt.Errorf("read cached connection: %w", err)
		}
		item, err := decodeConnection(raw)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, hashKey, connectionID)
			pipe.SAdd(ctx, connectionRemovedKey(planDayID), connectionID)
			return nil
		})
		prior = item.POIConnection
		return err
	}, hashKey)
	if err != nil {
		return store.POIConnection{}, err
	}
	return prior, nil
}

// RemoveByPOI drops every connection of the day that starts or ends at poiID.
func (c *ConnectionCoordinator) RemoveByPOI(ctx context.Context, planDayID, poiID string) ([]store.POIConnection, error) {
	if err := c.hydrateDays(ctx, []string{planDayID}); err != nil {
		return nil, err
	}

	hashKey := connectionHashKey(planDayID)
	var removed []store.POIConnection
	err := watch(ctx, c.client, "disconnect", func(tx *redis.Tx) error {
		raw, err := tx.HGetAll(ctx, hashKey).Result()
		if err != nil {
			return fmt.Errorf("read connection cache: %w", err)
		}
		items, err := decodeConnections(raw)
		if err != nil {
			return err
		}
		removed = removed[:0]
		var ids []string
		for _, item := range plain(items) {
			if item.PrevPOIID == poiID || item.NextPOIID == poiID {
				removed = append(removed, item)
				ids = append(ids, item.ID)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		members := make([]any, 0, len(ids))
		for _, id := range ids {
			members = append(members, id)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, hashKey, ids...)
			pipe.SAdd(ctx, connectionRemovedKey(planDayID), members...)
			return nil
		})
		return err
	}, hashKey)
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Flush commits the cached connections of every plan day of the workspace.
// It must run after the POI flush so both endpoints exist in Postgres.
func (c *ConnectionCoordinator) Flush(ctx context.Context, workspaceID string) (result ConnectionFlushResult, err error) {
	ctx, span := otel.Tracer("cache").Start(ctx, "cache.ConnectionCoordinator.Flush",
		trace.WithAttributes(attribute.String("workspace_id", workspaceID)),
	)
	timer := prometheus.NewTimer(metrics.FlushDuration.WithLabelValues("connection"))
	defer func() {
		timer.ObserveDuration()
		endSpan(span, err)
	}()

	days, err := c.store.ListPlanDays(ctx, workspaceID)
	if err != nil {
		return ConnectionFlushResult{}, err
	}
	result.Committed = []store.POIConnection{}
	if len(days) == 0 {
		return result, nil
	}

	keys := make([]string, 0, 3*len(days))
	watched := make([]string, 0, 2*len(days))
	for _, day := range days {
		keys = append(keys, connectionHashKey(day.ID), connectionRemovedKey(day.ID), connectionLoadedKey(day.ID))
		watched = append(watched, connectionHashKey(day.ID), connectionRemovedKey(day.ID))
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		hashCmds := make([]*redis.MapStringStringCmd, 0, len(days))
		removedCmds := make([]*redis.StringSliceCmd, 0, len(days))
		if _, err := tx.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, day := range days {
				hashCmds = append(hashCmds, pipe.HGetAll(ctx, connectionHashKey(day.ID)))
				removedCmds = append(removedCmds, pipe.SMembers(ctx, connectionRemovedKey(day.ID)))
			}
			return nil
		}); err != nil {
			return fmt.Errorf("read connection cache: %w", err)
		}

		var (
			upserts []store.POIConnection
			deletes []string
			newly   int
		)
		for i := range days {
			items, err := decodeConnections(hashCmds[i].Val())
			if err != nil {
				return err
			}
			for _, item := range items {
				upserts = append(upserts, item.POIConnection)
				if !item.IsPersisted {
					newly++
				}
			}
			deletes = append(deletes, removedCmds[i].Val()...)
		}
		if len(upserts) == 0 && len(deletes) == 0 {
			return nil
		}

		if err := c.store.FlushConnections(ctx, upserts, deletes); err != nil {
			return fmt.Errorf("flush connections: %w", err)
		}
		result = ConnectionFlushResult{Committed: upserts, NewlyPersisted: newly, Removed: len(deletes)}
		if result.Committed == nil {
			result.Committed = []store.POIConnection{}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			return nil
		})
		if err == nil {
			result.Evicted = true
		}
		return err
	}, watched...)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		log.Printf("cache: connections of workspace %s changed during flush; keeping cache", workspaceID)
		metrics.Flushes.WithLabelValues("connection", "kept").Inc()
		err = nil
	case err != nil:
		metrics.Flushes.WithLabelValues("connection", "error").Inc()
		return ConnectionFlushResult{}, err
	case len(result.Committed) == 0 && result.Removed == 0:
		metrics.Flushes.WithLabelValues("connection", "noop").Inc()
	default:
		metrics.Flushes.WithLabelValues("connection", "ok").Inc()
	}
	metrics.NewlyPersisted.WithLabelValues("connection").Add(float64(result.NewlyPersisted))
	return result, nil
}

// Evict drops the connection keys of the given plan days.
func (c *ConnectionCoordinator) Evict(ctx context.Context, _ string, planDayIDs []string) error {
	if len(planDayIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, 3*len(planDayIDs))
	for _, id := range planDayIDs {
		keys = append(keys, connectionHashKey(id), connectionRemovedKey(id), connectionLoadedKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("evict connection cache: %w", err)
	}
	return nil
}

// hydrateDays loads every listed day not loaded yet with one query and marks
// it loaded, even when it has no connections. Connections removed but not yet
// flushed stay out.
func (c *ConnectionCoordinator) hydrateDays(ctx context.Context, planDayIDs []string) (err error) {
	if len(planDayIDs) == 0 {
		return nil
	}
	cold, err := c.coldDays(ctx, c.client, planDayIDs)
	if err != nil || len(cold) == 0 {
		return err
	}

	ctx, span := otel.Tracer("cache").Start(ctx, "cache.ConnectionCoordinator.hydrate",
		trace.WithAttributes(attribute.Int("cold_days", len(cold))),
	)
	defer func() { endSpan(span, err) }()

	watched := make([]string, 0, 3*len(cold))
	for _, id := range cold {
		watched = append(watched, connectionHashKey(id), connectionRemovedKey(id), connectionLoadedKey(id))
	}
	err = watch(ctx, c.client, "hydrate", func(tx *redis.Tx) error {
		stillCold, err := c.coldDays(ctx, tx, cold)
		if err != nil || len(stillCold) == 0 {
			return err
		}
		loaded, err := c.store.ListConnections(ctx, stillCold)
		if err != nil {
			return err
		}

		removedCmds := make(map[string]*redis.StringSliceCmd, len(stillCold))
		cachedCmds := make(map[string]*redis.StringSliceCmd, len(stillCold))
		if _, err := tx.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range stillCold {
				removedCmds[id] = pipe.SMembers(ctx, connectionRemovedKey(id))
				cachedCmds[id] = pipe.HKeys(ctx, connectionHashKey(id))
			}
			return nil
		}); err != nil {
			return fmt.Errorf("read removed connections: %w", err)
		}
		// Tombstoned ids stay out and cached edits win over Postgres.
		skip := map[string]bool{}
		for _, cmds := range []map[string]*redis.StringSliceCmd{removedCmds, cachedCmds} {
			for _, cmd := range cmds {
				for _, id := range cmd.Val() {
					skip[id] = true
				}
			}
		}

		fields := map[string]map[string]any{}
		for _, item := range loaded {
			if skip[item.ID] {
				continue
			}
			value, err := encode(CachedConnection{POIConnection: item, IsPersisted: true})
			if err != nil {
				return err
			}
			if fields[item.PlanDayID] == nil {
				fields[item.PlanDayID] = map[string]any{}
			}
			fields[item.PlanDayID][item.ID] = value
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for dayID, values := range fields {
				pipe.HSet(ctx, connectionHashKey(dayID), values)
			}
			for _, id := range stillCold {
				pipe.Set(ctx, connectionLoadedKey(id), "1", 0)
			}
			return nil
		})
		return err
	}, watched...)
	if err != nil {
		return err
	}
	metrics.CacheHydrations.WithLabelValues("connection").Inc()
	return nil
}

type existsChecker interface {
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

func (c *ConnectionCoordinator) coldDays(ctx context.Context, r existsChecker, planDayIDs []string) ([]string, error) {
	cmds := make([]*redis.IntCmd, 0, len(planDayIDs))
	if _, err := r.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range planDayIDs {
			cmds = append(cmds, pipe.Exists(ctx, connectionLoadedKey(id)))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("check connection cache: %w", err)
	}
	var cold []string
	for i, cmd := range cmds {
		if cmd.Val() == 0 {
			cold = append(cold, planDayIDs[i])
		}
	}
	return cold, nil
}

func decodeConnections(raw map[string]string) ([]CachedConnection, error) {
	items := make([]CachedConnection, 0, len(raw))
	for _, value := range raw {
		item, err := decodeConnection(value)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func plain(items []CachedConnection) []store.POIConnection {
	out := make([]store.POIConnection, 0, len(items))
	for _, item := range items {
		out = append(out, item.POIConnection)
	}
	return out
}
