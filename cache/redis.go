package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"phasewatch/models"
)

const (
	analysisPrefix = "analysis:"
	latestScoreKey = "scores:latest"
)

type Options struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	// TTL bounds how long a streaming verdict stays readable.
	TTL time.Duration
}

type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(ctx context.Context, opts Options) (*RedisClient, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 50
	}
	if opts.MinIdleConns <= 0 {
		opts.MinIdleConns = 10
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		MaxRetries:   opts.MaxRetries,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	return &RedisClient{
		client: rdb,
		ttl:    opts.TTL,
	}, nil
}

func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

func (rc *RedisClient) SaveAnalysis(ctx context.Context, channelID string, result models.AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return rc.client.Set(ctx, analysisPrefix+channelID, data, rc.ttl).Err()
}

// GetAnalysis returns nil without error when the channel has no verdict.
func (rc *RedisClient) GetAnalysis(ctx context.Context, channelID string) (*models.AnalysisResult, error) {
	val, err := rc.client.Get(ctx, analysisPrefix+channelID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// LatestScore is the most recent defined batch score of a channel.
type LatestScore struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

// WriteScores keeps the last defined score of every channel in one hash,
// so dashboards can read current state without touching the database.
func (rc *RedisClient) WriteScores(ctx context.Context, table models.ScoreTable) (int, error) {
	fields := make(map[string]interface{}, len(table.Channels))
	for _, ch := range table.Channels {
		for i := len(table.Rows) - 1; i >= 0; i-- {
			s := table.Rows[i].Scores[ch]
			if !s.Defined {
				continue
			}
			data, err := json.Marshal(LatestScore{Timestamp: table.Rows[i].Timestamp, Score: s.Value})
			if err != nil {
				return 0, err
			}
			fields[ch] = data
			break
		}
	}

	if len(fields) == 0 {
		return 0, nil
	}
	if err := rc.client.HSet(ctx, latestScoreKey, fields).Err(); err != nil {
		return 0, err
	}
	return len(fields), nil
}

func (rc *RedisClient) LatestScore(ctx context.Context, channelID string) (*LatestScore, error) {
	val, err := rc.client.HGet(ctx, latestScoreKey, channelID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ls LatestScore
	if err := json.Unmarshal([]byte(val), &ls); err != nil {
		return nil, err
	}
	return &ls, nil
}
