package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/powderline/powderline/internal/types"
)

const (
	statusCollection  = "mountain_status"
	runCollection     = "scraper_runs"
	failureCollection = "scraper_failures"
)

// statusDoc is the BSON shape of one persisted status.
type statusDoc struct {
	MountainID  string    `bson:"mountain_id"`
	IsOpen      bool      `bson:"is_open"`
	PercentOpen *int      `bson:"percent_open,omitempty"`
	LiftsOpen   int       `bson:"lifts_open"`
	LiftsTotal  int       `bson:"lifts_total"`
	RunsOpen    int       `bson:"runs_open"`
	RunsTotal   int       `bson:"runs_total"`
	AcresOpen   *float64  `bson:"acres_open,omitempty"`
	AcresTotal  *float64  `bson:"acres_total,omitempty"`
	Message     string    `bson:"message,omitempty"`
	SourceURL   string    `bson:"source_url"`
	DataURL     string    `bson:"data_url"`
	ScrapedAt   time.Time `bson:"scraped_at"`
}

func toDoc(s *types.ScrapedStatus) statusDoc {
	return statusDoc{
		MountainID:  s.MountainID,
		IsOpen:      s.IsOpen,
		PercentOpen: s.PercentOpen,
		LiftsOpen:   s.LiftsOpen,
		LiftsTotal:  s.LiftsTotal,
		RunsOpen:    s.RunsOpen,
		RunsTotal:   s.RunsTotal,
		AcresOpen:   s.AcresOpen,
		AcresTotal:  s.AcresTotal,
		Message:     s.Message,
		SourceURL:   s.SourceURL,
		DataURL:     s.DataURL,
		ScrapedAt:   s.ScrapedAt.UTC(),
	}
}

func (d statusDoc) toStatus() types.ScrapedStatus {
	return types.ScrapedStatus{
		MountainID:  d.MountainID,
		IsOpen:      d.IsOpen,
		PercentOpen: d.PercentOpen,
		LiftsOpen:   d.LiftsOpen,
		LiftsTotal:  d.LiftsTotal,
		RunsOpen:    d.RunsOpen,
		RunsTotal:   d.RunsTotal,
		AcresOpen:   d.AcresOpen,
		AcresTotal:  d.AcresTotal,
		Message:     d.Message,
		SourceURL:   d.SourceURL,
		DataURL:     d.DataURL,
		ScrapedAt:   d.ScrapedAt,
	}
}

// MongoStore is the document StatusStore backend. Reads key by mountain_id
// and scan descending by scraped_at; "latest per mountain" is a group-by
// aggregation rather than a materialized view.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// NewMongoStore connects and pings the deployment.
func NewMongoStore(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}
	return &MongoStore{
		client: client,
		db:     client.Database(database),
		logger: logger.With("component", "mongo_store"),
	}, nil
}

// EnsureSchema creates the unique (mountain_id, scraped_at) index that
// backs idempotent inserts and the latest-per-mountain sort.
func (s *MongoStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Collection(statusCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "mountain_id", Value: 1}, {Key: "scraped_at", Value: -1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) StartRun(ctx context.Context, total int, trigger string) (string, error) {
	runID := uuid.New().String()
	_, err := s.db.Collection(runCollection).InsertOne(ctx, bson.M{
		"run_id":          runID,
		"triggered_by":    trigger,
		"total_mountains": total,
		"status":          types.RunStatusRunning,
		"started_at":      time.Now().UTC(),
	})
	if err != nil {
		return "", &types.StorageError{Backend: "mongodb", Op: "start_run", Err: err}
	}
	return runID, nil
}

func (s *MongoStore) CompleteRun(ctx context.Context, runID string, successful, failed int, duration time.Duration) error {
	_, err := s.db.Collection(runCollection).UpdateOne(ctx,
		bson.M{"run_id": runID},
		bson.M{"$set": bson.M{
			"status":           types.RunStatusCompleted,
			"successful_count": successful,
			"failed_count":     failed,
			"duration_ms":      duration.Milliseconds(),
			"completed_at":     time.Now().UTC(),
		}})
	if err != nil {
		return &types.StorageError{Backend: "mongodb", Op: "complete_run", Err: err}
	}
	return nil
}

func (s *MongoStore) FailRun(ctx context.Context, runID, message string) error {
	_, err := s.db.Collection(runCollection).UpdateOne(ctx,
		bson.M{"run_id": runID},
		bson.M{"$set": bson.M{
			"status":        types.RunStatusFailed,
			"error_message": message,
			"completed_at":  time.Now().UTC(),
		}})
	if err != nil {
		return &types.StorageError{Backend: "mongodb", Op: "fail_run", Err: err}
	}
	return nil
}

func (s *MongoStore) Save(ctx context.Context, status *types.ScrapedStatus) error {
	_, err := s.db.Collection(statusCollection).InsertOne(ctx, toDoc(status))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			s.logger.Debug("duplicate status skipped",
				"mountain", status.MountainID, "scraped_at", status.ScrapedAt)
			return nil
		}
		return &types.StorageError{Backend: "mongodb", Op: "save", Err: err}
	}
	return nil
}

func (s *MongoStore) SaveMany(ctx context.Context, statuses []*types.ScrapedStatus) (saved, failed int) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, status := range statuses {
		wg.Add(1)
		go func(status *types.ScrapedStatus) {
			defer wg.Done()
			err := s.Save(ctx, status)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				s.logger.Error("save failed", "mountain", status.MountainID, "error", err)
				return
			}
			saved++
		}(status)
	}
	wg.Wait()
	return saved, failed
}

func (s *MongoStore) SaveFailure(ctx context.Context, runID, mountainID, message, url string) error {
	_, err := s.db.Collection(failureCollection).InsertOne(ctx, bson.M{
		"run_id":        runID,
		"mountain_id":   mountainID,
		"error_message": message,
		"source_url":    url,
		"failed_at":     time.Now().UTC(),
	})
	if err != nil {
		// Best-effort audit trail, never a hard failure.
		s.logger.Warn("failure log skipped", "mountain", mountainID, "error", err)
	}
	return nil
}

func (s *MongoStore) GetLatest(ctx context.Context, mountainID string) (*types.ScrapedStatus, error) {
	var doc statusDoc
	err := s.db.Collection(statusCollection).FindOne(ctx,
		bson.M{"mountain_id": mountainID},
		options.FindOne().SetSort(bson.D{{Key: "scraped_at", Value: -1}}),
	).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, &types.StorageError{Backend: "mongodb", Op: "get_latest", Err: err}
	}
	status := doc.toStatus()
	return &status, nil
}

func (s *MongoStore) GetAllLatest(ctx context.Context) ([]types.ScrapedStatus, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "mountain_id", Value: 1}, {Key: "scraped_at", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$mountain_id"},
			{Key: "doc", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
		}}},
		{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$doc"}}}},
		{{Key: "$sort", Value: bson.D{{Key: "mountain_id", Value: 1}}}},
	}
	cur, err := s.db.Collection(statusCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, &types.StorageError{Backend: "mongodb", Op: "get_all_latest", Err: err}
	}
	defer cur.Close(ctx)

	result := []types.ScrapedStatus{}
	for cur.Next(ctx) {
		var doc statusDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, &types.StorageError{Backend: "mongodb", Op: "get_all_latest", Err: err}
		}
		result = append(result, doc.toStatus())
	}
	return result, cur.Err()
}

func (s *MongoStore) GetHistory(ctx context.Context, mountainID string, days int) ([]types.ScrapedStatus, error) {
	if days <= 0 {
		days = StatsWindowDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	cur, err := s.db.Collection(statusCollection).Find(ctx,
		bson.M{"mountain_id": mountainID, "scraped_at": bson.M{"$gte": cutoff}},
		options.Find().SetSort(bson.D{{Key: "scraped_at", Value: -1}}),
	)
	if err != nil {
		return nil, &types.StorageError{Backend: "mongodb", Op: "get_history", Err: err}
	}
	defer cur.Close(ctx)

	result := []types.ScrapedStatus{}
	for cur.Next(ctx) {
		var doc statusDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, &types.StorageError{Backend: "mongodb", Op: "get_history", Err: err}
		}
		result = append(result, doc.toStatus())
	}
	return result, cur.Err()
}

func (s *MongoStore) Stats(ctx context.Context) (*StoreStats, error) {
	statuses := s.db.Collection(statusCollection)

	total, err := statuses.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, &types.StorageError{Backend: "mongodb", Op: "stats", Err: err}
	}
	ids, err := statuses.Distinct(ctx, "mountain_id", bson.M{})
	if err != nil {
		return nil, &types.StorageError{Backend: "mongodb", Op: "stats", Err: err}
	}

	stats := &StoreStats{
		TotalMountains: len(ids),
		TotalEntries:   int(total),
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -StatsWindowDays)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "started_at", Value: bson.D{{Key: "$gte", Value: cutoff}}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "avg_success", Value: bson.D{{Key: "$avg", Value: "$successful_count"}}},
			{Key: "avg_fail", Value: bson.D{{Key: "$avg", Value: "$failed_count"}}},
			{Key: "avg_duration", Value: bson.D{{Key: "$avg", Value: "$duration_ms"}}},
		}}},
	}
	cur, err := s.db.Collection(runCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, &types.StorageError{Backend: "mongodb", Op: "stats", Err: err}
	}
	defer cur.Close(ctx)

	if cur.Next(ctx) {
		var agg struct {
			Count       int     `bson:"count"`
			AvgSuccess  float64 `bson:"avg_success"`
			AvgFail     float64 `bson:"avg_fail"`
			AvgDuration float64 `bson:"avg_duration"`
		}
		if err := cur.Decode(&agg); err != nil {
			return nil, &types.StorageError{Backend: "mongodb", Op: "stats", Err: err}
		}
		stats.RecentRuns = RunAggregates{
			Count:         agg.Count,
			AvgSuccess:    agg.AvgSuccess,
			AvgFail:       agg.AvgFail,
			AvgDurationMS: agg.AvgDuration,
		}
	}
	return stats, cur.Err()
}

func (s *MongoStore) Cleanup(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -RetentionDays)
	res, err := s.db.Collection(statusCollection).DeleteMany(ctx,
		bson.M{"scraped_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, &types.StorageError{Backend: "mongodb", Op: "cleanup", Err: err}
	}
	deleted := int(res.DeletedCount)
	s.logger.Info("retention cleanup", "deleted", deleted, "cutoff", cutoff)
	return deleted, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	disconnectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.client.Disconnect(disconnectCtx)
}
