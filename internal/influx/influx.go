// Package influx writes track points to InfluxDB, falling back to a gzipped
// line protocol file when the server does not answer.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/pilgrimsafe/tracker/internal/config"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/rs/zerolog"
)

// BucketTracks is used when the config names no bucket.
const BucketTracks = "tracks"

// Retention of a bucket created by Connect.
const Retention = 90 * 24 * time.Hour

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx disabled in config")

// Manager owns the client and write API of one bucket, or the backup file
// once the server has been found unreachable. Writes are safe for
// concurrent use.
type Manager struct {
	cfg        config.InfluxConfig
	log        zerolog.Logger
	backupPath string

	mu         sync.Mutex
	client     influxdb2.Client
	writer     influxdb2_api.WriteAPI
	backupFile *os.File
	backup     *gzip.Writer
}

func NewManager(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Manager {
	if cfg.Bucket == "" {
		cfg.Bucket = BucketTracks
	}
	return &Manager{cfg: cfg, log: log, backupPath: backupPath}
}

// Bucket is the bucket points are written to.
func (m *Manager) Bucket() string {
	return m.cfg.Bucket
}

// Online reports whether points go to the server rather than the backup.
func (m *Manager) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writer != nil
}

// Ready reports whether points have a destination, server or backup.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writer != nil || m.backup != nil
}

// Connect pings the server and prepares the bucket. An unreachable server
// switches to the backup file and is not an error.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}
	url := fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port)
	client := influxdb2.NewClientWithOptions(url, m.cfg.Token,
		influxdb2.DefaultOptions().SetBatchSize(2500).SetFlushInterval(1000))

	if up, err := client.Ping(ctx); err != nil || !up {
		client.Close()
		m.log.Warn().Err(err).Str("url", url).Str("backupPath", m.backupPath).
			Msg("InfluxDB unreachable, writing line protocol backup")
		return m.UseBackup()
	}
	if err := m.ensureBucket(ctx, client); err != nil {
		client.Close()
		return err
	}

	writer := client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func() {
		for err := range writer.Errors() {
			m.log.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("InfluxDB write failed")
		}
	}()

	m.mu.Lock()
	m.client, m.writer = client, writer
	m.mu.Unlock()
	m.log.Info().Str("url", url).Str("bucket", m.cfg.Bucket).Msg("InfluxDB connected")
	return nil
}

func (m *Manager) ensureBucket(ctx context.Context, client influxdb2.Client) error {
	orgs := client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.log.Info().Str("org", m.cfg.Org).Msg("Creating InfluxDB organization")
		if org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org); err != nil {
			return fmt.Errorf("create org %s: %w", m.cfg.Org, err)
		}
	}

	buckets := client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, m.cfg.Bucket); err == nil {
		return nil
	}
	m.log.Info().Str("bucket", m.cfg.Bucket).Msg("Creating InfluxDB bucket")
	expire := domain.RetentionRuleTypeExpire
	_, err = buckets.CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
		Type:         &expire,
		EverySeconds: int64(Retention / time.Second),
	})
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", m.cfg.Bucket, err)
	}
	return nil
}

// UseBackup routes writes to the gzipped backup file. Calling it again is
// a no-op.
func (m *Manager) UseBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backup != nil {
		return nil
	}
	f, err := os.OpenFile(m.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open influx backup: %w", err)
	}
	m.backupFile = f
	m.backup = gzip.NewWriter(f)
	return nil
}

// WritePoint queues p on the write API, or appends it to the backup.
func (m *Manager) WritePoint(p *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.writer != nil:
		m.writer.WritePoint(p)
		return nil
	case m.backup != nil:
		line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
		if _, err := m.backup.Write([]byte(line + "\n")); err != nil {
			return fmt.Errorf("write influx backup: %w", err)
		}
		return nil
	default:
		return errors.New("influx not connected")
	}
}

// Close flushes the write API and the backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writer != nil {
		m.writer.Flush()
		m.writer = nil
	}
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	var errs []error
	if m.backup != nil {
		errs = append(errs, m.backup.Close(), m.backupFile.Close())
		m.backup, m.backupFile = nil, nil
	}
	return errors.Join(errs...)
}

// SamplePoint builds the point for one entity position.
func SamplePoint(s core.EntitySample) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement("track_sample").
		AddTag("session_id", s.SessionID).
		AddTag("entity_id", s.EntityID).
		AddTag("kind", s.Kind.String()).
		AddField("lat", s.Sample.Position.Lat).
		AddField("lng", s.Sample.Position.Lng).
		SetTime(time.UnixMilli(s.Sample.TimestampMs))
	if s.Sample.HeadingDeg != nil {
		p.AddField("heading", *s.Sample.HeadingDeg)
	}
	return p
}

// RoutePoint builds the point for one rendered route.
func RoutePoint(r core.RouteRecord) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("route").
		AddTag("session_id", r.SessionID).
		AddTag("destination_id", r.Overlay.DestinationID).
		AddField("distance_m", r.Overlay.DistanceMeters).
		AddField("eta_s", r.Overlay.EtaSeconds).
		AddField("points", len(r.Overlay.Polyline)).
		SetTime(r.Time)
}

// HintPoint builds the point for one accepted center hint.
func HintPoint(h core.HintRecord) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("center_hint").
		AddTag("session_id", h.SessionID).
		AddTag("hint_id", h.Hint.ID).
		AddField("lat", h.Hint.Position.Lat).
		AddField("lng", h.Hint.Position.Lng).
		AddField("label", h.Hint.Label).
		SetTime(h.Time)
}

// SessionPoint marks a session boundary; event is "start" or "end".
func SessionPoint(s core.Session, event string, at time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("session").
		AddTag("session_id", s.ID).
		AddTag("group", s.GroupName).
		AddField("event", event).
		AddField("duration_s", s.Duration(at).Seconds()).
		SetTime(at)
}
