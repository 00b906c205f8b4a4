package braintrust

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/braintrustdata/braintrust-sdk-sub004/btbatch"
	"github.com/braintrustdata/braintrust-sdk-sub004/btrow"
)

// Transport sends one batch of serialized rows. Implementations own
// retry/backoff and cancellation; the collector only hands ordered batches
// over and re-queues rows when Send fails.
type Transport interface {
	Send(ctx context.Context, batch []string) error
}

// Collector buffers row mutations from any number of goroutines and
// drains them through reduce → order → partition to the Transport. Drains
// run one at a time: a mutation observed by drain N is never reordered
// behind one processed by drain N+1.
type Collector struct {
	ctx       context.Context
	config    Config
	transport Transport
	source    string
	version   *semver.Version
	instance  uuid.UUID
	log       logrus.FieldLogger

	lock        sync.Mutex // guards pending
	pending     []btrow.Mutation
	flushLock   sync.Mutex // serializes whole drains
	flushTimer  *time.Timer
	flushActive int32 // 1 == timer is running
	closed      int32
}

// NewCollector is lazy: nothing happens until the first mutation arrives.
func NewCollector(ctx context.Context, config Config, transport Transport) (*Collector, error) {
	if transport == nil {
		return nil, errors.New("collector needs a transport")
	}
	source, version, err := splitSourceVersion(config.Source, config.Version)
	if err != nil {
		return nil, err
	}
	if config.FlushDelay <= 0 {
		config.FlushDelay = DefaultConfig.FlushDelay
	}
	if config.MaxBatchItems == 0 {
		config.MaxBatchItems = DefaultConfig.MaxBatchItems
	}
	if config.MaxBatchBytes == 0 {
		config.MaxBatchBytes = DefaultConfig.MaxBatchBytes
	}
	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	instance := uuid.New()
	c := &Collector{
		ctx:       ctx,
		config:    config,
		transport: transport,
		source:    source,
		version:   version,
		instance:  instance,
		log:       log.WithField("collector", instance.String()),
	}
	c.flushTimer = time.AfterFunc(config.FlushDelay, c.timerFlush)
	c.flushTimer.Stop()
	return c, nil
}

// Source reports the collector's source name and version after any
// embedded version has been split off.
func (c *Collector) Source() (string, *semver.Version) { return c.source, c.version }

// Log appends one mutation to the pending queue and arms the drain timer.
// Safe for concurrent use.
func (c *Collector) Log(m btrow.Mutation) {
	c.lock.Lock()
	c.pending = append(c.pending, m)
	c.lock.Unlock()
	if atomic.CompareAndSwapInt32(&c.flushActive, 0, 1) {
		c.flushTimer.Reset(c.config.FlushDelay)
	}
}

func (c *Collector) timerFlush() {
	atomic.StoreInt32(&c.flushActive, 0)
	if atomic.LoadInt32(&c.closed) == 1 {
		return
	}
	// Flush reports its own failures
	_ = c.Flush()
}

// Flush drains everything pending right now. Fatal boundary errors (a
// mutation with no row id) propagate to the caller with the offending
// snapshot dropped; transport errors re-queue the unsent rows so the next
// drain re-merges them idempotently.
func (c *Collector) Flush() error {
	c.flushLock.Lock()
	defer c.flushLock.Unlock()

	c.lock.Lock()
	pending := c.pending
	c.pending = nil
	c.lock.Unlock()
	if len(pending) == 0 {
		return nil
	}

	rows, err := btrow.Reduce(pending)
	if err != nil {
		// the batch is poisoned; dropping is the collector's decision
		// per the boundary contract, and the caller hears about it
		c.reportError(err)
		return err
	}
	groups := btrow.Order(rows, c.log)

	type envelope struct {
		row  btrow.MergedRow
		data string
	}
	serialized := make([][]envelope, 0, len(groups))
	for _, group := range groups {
		encoded := make([]envelope, 0, len(group))
		for _, row := range group {
			data, err := sonic.Marshal(rowPayload(row))
			if err != nil {
				c.reportError(errors.Wrapf(err, "cannot serialize row %s", row.RowID))
				continue
			}
			encoded = append(encoded, envelope{row: row, data: string(data)})
		}
		serialized = append(serialized, encoded)
	}

	batches := btbatch.Partition(serialized, func(e envelope) int { return len(e.data) }, btbatch.Limits{
		MaxItems: c.config.MaxBatchItems,
		MaxBytes: c.config.MaxBatchBytes,
	})
	for i, batch := range batches {
		payload := make([]string, len(batch))
		for j, e := range batch {
			payload[j] = e.data
		}
		if err := c.transport.Send(c.ctx, payload); err != nil {
			var unsent []btrow.Mutation
			for _, rest := range batches[i:] {
				for _, e := range rest {
					unsent = append(unsent, rowMutation(e.row))
				}
			}
			c.requeue(unsent)
			err = errors.Wrapf(err, "batch %d of %d not sent, %d rows re-queued", i+1, len(batches), len(unsent))
			c.reportError(err)
			return err
		}
	}
	return nil
}

// Close flushes once more and stops the timer. The collector must not be
// used afterwards.
func (c *Collector) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	c.flushTimer.Stop()
	return c.Flush()
}

// requeue puts already-merged rows back ahead of newer pending input so
// arrival order stays monotonic across drains. Immutable-once-set
// preservation makes the later re-merge idempotent.
func (c *Collector) requeue(unsent []btrow.Mutation) {
	if len(unsent) == 0 {
		return
	}
	c.lock.Lock()
	c.pending = append(unsent, c.pending...)
	c.lock.Unlock()
}

func (c *Collector) reportError(err error) {
	if c.config.OnError != nil {
		c.config.OnError(err)
		return
	}
	c.log.WithError(err).Warn("collector drain problem")
}

// rowPayload flattens a merged row into its wire object: the payload
// fields plus the row id, parent id, merge marker, and whichever container
// axis is set.
func rowPayload(row btrow.MergedRow) map[string]any {
	payload := make(map[string]any, len(row.Fields)+8)
	for k, v := range row.Fields {
		payload[k] = v
	}
	payload[btrow.FieldID] = row.RowID
	if row.ParentRowID != "" {
		payload[btrow.FieldParentID] = row.ParentRowID
	}
	if row.IsMerge {
		payload[btrow.FieldIsMerge] = true
	}
	setScope(payload, row.Scope)
	return payload
}

func setScope(payload map[string]any, scope btrow.ScopeKey) {
	for _, axis := range []struct {
		key   string
		value string
	}{
		{"org_id", scope.OrgID},
		{"project_id", scope.ProjectID},
		{"experiment_id", scope.ExperimentID},
		{"dataset_id", scope.DatasetID},
		{"prompt_session_id", scope.PromptSessionID},
		{"log_id", scope.LogID},
	} {
		if axis.value != "" {
			payload[axis.key] = axis.value
		}
	}
}

// rowMutation converts a merged row back into a mutation for re-queueing.
func rowMutation(row btrow.MergedRow) btrow.Mutation {
	return btrow.Mutation{
		Scope:       row.Scope,
		RowID:       row.RowID,
		ParentRowID: row.ParentRowID,
		IsMerge:     row.IsMerge,
		Fields:      row.Fields,
	}
}
