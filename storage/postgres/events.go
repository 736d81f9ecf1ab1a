package postgres

import (
	"context"
	"errors"
	"fmt"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/oasisprotocol/oasis-core/go/common/quantity"

	"github.com/verilayer/verilayer/events"
	"github.com/verilayer/verilayer/storage"
)

const (
	insertEvent = `
		INSERT INTO events (seq, height, kind, task_id, actor, amount, new_state, detail)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (seq) DO NOTHING`

	lastEventSeq = `
		SELECT COALESCE(MAX(seq), 0) FROM events`

	eventsSince = `
		SELECT seq, height, kind, task_id, actor, amount::TEXT, new_state, detail
			FROM events
			WHERE seq > $1
			ORDER BY seq
			LIMIT NULLIF($2, 0)`

	taskEvents = `
		SELECT seq, height, kind, task_id, actor, amount::TEXT, new_state, detail
			FROM events
			WHERE task_id = $1 AND kind NOT IN ('DepositMade', 'DepositWithdrawn')
			ORDER BY seq`
)

// EventSink writes committed events into the events table.
type EventSink struct {
	client *Client
}

var (
	_ events.Sink    = (*EventSink)(nil)
	_ events.Archive = (*EventSink)(nil)
)

// NewEventSink creates a sink writing through client. The schema must
// already be migrated.
func NewEventSink(client *Client) *EventSink {
	return &EventSink{client: client}
}

// Name implements events.Sink.
func (s *EventSink) Name() string {
	return moduleName
}

// Write implements events.Sink. Rows that already exist are left unchanged,
// so replaying a batch is harmless.
func (s *EventSink) Write(ctx context.Context, evs []events.Event) error {
	batch := &storage.QueryBatch{}
	for _, ev := range evs {
		var amount *string
		if ev.Amount != nil {
			a := ev.Amount.String()
			amount = &a
		}
		batch.Queue(insertEvent,
			ev.Seq,
			ev.Height,
			string(ev.Kind),
			ev.TaskID,
			ev.Actor.Hex(),
			amount,
			ev.NewState,
			ev.Detail,
		)
	}
	return s.client.SendBatch(ctx, batch)
}

// LastSeq returns the highest stored sequence number, 0 if the table is empty.
func (s *EventSink) LastSeq(ctx context.Context) (uint64, error) {
	var seq int64
	if err := s.client.QueryRow(ctx, lastEventSeq).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last event seq: %w", err)
	}
	return uint64(seq), nil
}

// Since returns up to limit stored events with a sequence number greater than seq.
// A limit of 0 means no limit.
func (s *EventSink) Since(ctx context.Context, seq uint64, limit int) ([]events.Event, error) {
	rows, err := s.client.Query(ctx, eventsSince, seq, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// ForTask returns all stored events about the given task, in order.
func (s *EventSink) ForTask(ctx context.Context, taskID uint64) ([]events.Event, error) {
	rows, err := s.client.Query(ctx, taskEvents, taskID)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]events.Event, error) {
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			ev     events.Event
			kind   string
			actor  string
			amount *string
		)
		if err := rows.Scan(
			&ev.Seq,
			&ev.Height,
			&kind,
			&ev.TaskID,
			&actor,
			&amount,
			&ev.NewState,
			&ev.Detail,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = events.Kind(kind)
		ev.Actor = ethCommon.HexToAddress(actor)
		if amount != nil {
			var q quantity.Quantity
			if err := q.UnmarshalText([]byte(*amount)); err != nil {
				return nil, fmt.Errorf("event %d amount: %w", ev.Seq, err)
			}
			ev.Amount = &q
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return out, nil
}
