//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"courier/domain"
	"courier/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Append(message domain.Message) error
	ListBetween(userA, userB string, cursor *string) ([]domain.Message, *string, error)
	Delete(messageID uuid.UUID, requesterID string) (domain.Message, error)
	MarkConversationRead(owner, counterpart string) (int, error)
	UnreadSenders(owner string) (map[string]struct{}, error)
	Partners(owner string) ([]string, error)
	EarliestMessage(userA, userB string) (domain.Message, error)
	GetByID(messageID uuid.UUID) (domain.Message, error)
}

// MessageRepository persists point-to-point messages in BadgerDB.
//
// Three key families are maintained in the same transaction:
//
//	msg:{pair}:{timestamp_padded}:{uuid} -> CBOR-encoded record
//	ref:{uuid}                          -> the msg key (id lookups)
//	conv:{user}:{pair}                  -> counterpart id (pair directory)
//
// The 19-digit zero padding keeps lexicographical order equal to
// chronological order, with the UUID as a collision disconnector when two
// messages land on the same nanosecond. The conv entries only record that
// a pair exists; everything derived (unread senders, partner ranking)
// is recomputed from the msg records on every call.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// diskMessage is the storage shape of a message record.
type diskMessage struct {
	ID         string `cbor:"id"`
	SenderID   string `cbor:"sender_id"`
	ReceiverID string `cbor:"receiver_id"`
	Content    string `cbor:"content"`
	CreatedAt  int64  `cbor:"created_at"` // unix nanoseconds
	Read       bool   `cbor:"read"`
	Deleted    bool   `cbor:"deleted"`
}

const (
	msgPrefix  = "msg:"
	refPrefix  = "ref:"
	convPrefix = "conv:"

	// Greater than any zero-padded nanosecond timestamp, used as the
	// reverse-iteration seek anchor.
	maxTimestamp = "9999999999999999999"
)

func msgKey(message domain.Message) string {
	return fmt.Sprintf("%s%s:%019d:%s",
		msgPrefix,
		domain.PairKey(message.SenderID, message.ReceiverID),
		message.CreatedAt.UnixNano(),
		message.ID,
	)
}

func refKey(id uuid.UUID) []byte {
	return []byte(refPrefix + id.String())
}

func convKey(owner, pair string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", convPrefix, owner, pair))
}

// Append persists a new message together with its id reference and the
// pair-directory entries of both participants, atomically.
func (m MessageRepository) Append(message domain.Message) error {
	key := msgKey(message)
	bytes, err := cbor.Marshal(fromDomain(message))
	if err != nil {
		return err
	}
	pair := domain.PairKey(message.SenderID, message.ReceiverID)
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), bytes); err != nil {
			return err
		}
		if err := txn.Set(refKey(message.ID), []byte(key)); err != nil {
			return err
		}
		if err := txn.Set(convKey(message.SenderID, pair), []byte(message.ReceiverID)); err != nil {
			return err
		}
		return txn.Set(convKey(message.ReceiverID, pair), []byte(message.SenderID))
	})
}

// ListBetween returns the visible messages of the {userA, userB} pair in
// ascending (created_at, id) order, both directions merged. Tombstoned
// records are skipped. The returned cursor restarts the scan after the
// last returned record; nil means the sequence is exhausted.
func (m MessageRepository) ListBetween(userA, userB string, cursor *string) ([]domain.Message, *string, error) {
	prefixStr := msgPrefix + domain.PairKey(userA, userB) + ":"
	prefix := []byte(prefixStr)

	var page []domain.Message
	var lastKey string
	var more bool

	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		switch cursor {
		case nil:
			it.Seek(prefix)
		default:
			it.Seek(append(prefix, []byte(*cursor)...))
			if it.ValidForPrefix(prefix) {
				it.Next()
			}
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(page) == *m.limitMessages {
				more = true
				break
			}
			item := it.Item()
			message, err := decodeItem(item)
			if err != nil {
				return err
			}
			lastKey = string(item.Key()[len(prefixStr):])
			if message.Deleted {
				continue
			}
			page = append(page, message)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if !more {
		return page, nil, nil
	}
	return page, &lastKey, nil
}

// Delete marks a message as tombstoned. Only the sender may delete, and a
// second delete of the same id reports the message as not found. The
// tombstoned record is returned so the caller can notify both
// participants.
func (m MessageRepository) Delete(messageID uuid.UUID, requesterID string) (domain.Message, error) {
	var deleted domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		key, message, err := getByRef(txn, messageID)
		if err != nil {
			return err
		}
		if message.Deleted {
			return errors.ErrMessageNotFound
		}
		if message.SenderID != requesterID {
			return errors.ErrUnauthorized
		}
		message.Deleted = true
		bytes, err := cbor.Marshal(fromDomain(message))
		if err != nil {
			return err
		}
		deleted = message
		return txn.Set(key, bytes)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return deleted, nil
}

// MarkConversationRead flips every unread message from counterpart to
// owner in one conditional transaction: rows are selected and rewritten
// under the same snapshot, so a message appended concurrently is either
// invisible to the snapshot (and stays unread) or the commit conflicts
// and the whole batch is retried against fresh state. Two racing callers
// therefore never double-count: one reports N, the other 0.
func (m MessageRepository) MarkConversationRead(owner, counterpart string) (int, error) {
	prefix := []byte(msgPrefix + domain.PairKey(owner, counterpart) + ":")

	for attempt := 0; ; attempt++ {
		count := 0
		err := m.db.Update(func(txn *badger.Txn) error {
			type row struct {
				key     []byte
				message domain.Message
			}
			var rows []row

			it := txn.NewIterator(badger.DefaultIteratorOptions)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				message, err := decodeItem(item)
				if err != nil {
					it.Close()
					return err
				}
				if message.ReceiverID != owner || message.Read || message.Deleted {
					continue
				}
				rows = append(rows, row{key: item.KeyCopy(nil), message: message})
			}
			it.Close()

			for _, r := range rows {
				r.message.Read = true
				bytes, err := cbor.Marshal(fromDomain(r.message))
				if err != nil {
					return err
				}
				if err := txn.Set(r.key, bytes); err != nil {
					return err
				}
			}
			count = len(rows)
			return nil
		})
		if err == nil {
			return count, nil
		}
		if err == badger.ErrConflict && attempt < 2 {
			m.log.Debug("Read transition conflicted, retrying", "owner", owner, "counterpart", counterpart)
			continue
		}
		if err == badger.ErrConflict {
			return 0, fmt.Errorf("%w: mark read", errors.ErrConflict)
		}
		return 0, err
	}
}

// UnreadSenders re-derives the set of counterparts having at least one
// unread, non-deleted message addressed to owner. Always a full scan of
// the owner's pairs, never an incremental counter.
func (m MessageRepository) UnreadSenders(owner string) (map[string]struct{}, error) {
	senders := make(map[string]struct{})
	err := m.db.View(func(txn *badger.Txn) error {
		for _, pc := range ownerPairs(txn, owner) {
			unread, err := pairHasUnread(txn, pc.pair, owner)
			if err != nil {
				return err
			}
			if unread {
				senders[pc.counterpart] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return senders, nil
}

// Partners re-derives the distinct counterparts of owner ordered by the
// timestamp of the pair's most recent visible message, newest first.
// Pairs whose every message is tombstoned keep their seed ordering slot
// via the earliest record, so an existing conversation never vanishes
// from the list.
func (m MessageRepository) Partners(owner string) ([]string, error) {
	type ranked struct {
		counterpart string
		at          int64
	}
	var entries []ranked

	err := m.db.View(func(txn *badger.Txn) error {
		for _, pc := range ownerPairs(txn, owner) {
			at, err := latestActivity(txn, pc.pair)
			if err != nil {
				return err
			}
			if at == 0 {
				continue
			}
			entries = append(entries, ranked{counterpart: pc.counterpart, at: at})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].at != entries[j].at {
			return entries[i].at > entries[j].at
		}
		return entries[i].counterpart < entries[j].counterpart
	})
	return lo.Map(entries, func(e ranked, _ int) string { return e.counterpart }), nil
}

// EarliestMessage returns the first record of the pair, including
// tombstones, so conversation handles stay stable after deletions.
func (m MessageRepository) EarliestMessage(userA, userB string) (domain.Message, error) {
	prefix := []byte(msgPrefix + domain.PairKey(userA, userB) + ":")
	var earliest domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		it.Seek(prefix)
		if !it.ValidForPrefix(prefix) {
			return errors.ErrMessageNotFound
		}
		message, err := decodeItem(it.Item())
		if err != nil {
			return err
		}
		earliest = message
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return earliest, nil
}

// GetByID resolves a message through its id reference, tombstones
// included.
func (m MessageRepository) GetByID(messageID uuid.UUID) (domain.Message, error) {
	var found domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		_, message, err := getByRef(txn, messageID)
		if err != nil {
			return err
		}
		found = message
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return found, nil
}

type pairCounterpart struct {
	pair        string
	counterpart string
}

// ownerPairs lists the pair directory of one user from its conv entries.
func ownerPairs(txn *badger.Txn, owner string) []pairCounterpart {
	prefixStr := fmt.Sprintf("%s%s:", convPrefix, owner)
	prefix := []byte(prefixStr)

	var pairs []pairCounterpart
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		pair := string(item.Key()[len(prefixStr):])
		_ = item.Value(func(value []byte) error {
			pairs = append(pairs, pairCounterpart{pair: pair, counterpart: string(value)})
			return nil
		})
	}
	return pairs
}

func pairHasUnread(txn *badger.Txn, pair, owner string) (bool, error) {
	prefix := []byte(msgPrefix + pair + ":")
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		message, err := decodeItem(it.Item())
		if err != nil {
			return false, err
		}
		if message.ReceiverID == owner && !message.Read && !message.Deleted {
			return true, nil
		}
	}
	return false, nil
}

// latestActivity returns the creation time (unix nanoseconds) of the
// pair's newest visible message, falling back to the earliest record when
// everything is tombstoned. 0 means no record at all.
func latestActivity(txn *badger.Txn, pair string) (int64, error) {
	prefix := []byte(msgPrefix + pair + ":")

	options := badger.DefaultIteratorOptions
	options.Reverse = true
	it := txn.NewIterator(options)
	defer it.Close()

	seekKey := append([]byte{}, prefix...)
	seekKey = append(seekKey, []byte(maxTimestamp)...)

	var earliest int64
	for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
		message, err := decodeItem(it.Item())
		if err != nil {
			return 0, err
		}
		earliest = message.CreatedAt.UnixNano()
		if !message.Deleted {
			return message.CreatedAt.UnixNano(), nil
		}
	}
	return earliest, nil
}

func getByRef(txn *badger.Txn, messageID uuid.UUID) ([]byte, domain.Message, error) {
	item, err := txn.Get(refKey(messageID))
	if err == badger.ErrKeyNotFound {
		return nil, domain.Message{}, errors.ErrMessageNotFound
	}
	if err != nil {
		return nil, domain.Message{}, err
	}
	var key []byte
	if err = item.Value(func(value []byte) error {
		key = append([]byte{}, value...)
		return nil
	}); err != nil {
		return nil, domain.Message{}, err
	}

	msgItem, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, domain.Message{}, errors.ErrMessageNotFound
	}
	if err != nil {
		return nil, domain.Message{}, err
	}
	message, err := decodeItem(msgItem)
	if err != nil {
		return nil, domain.Message{}, err
	}
	return key, message, nil
}

func decodeItem(item *badger.Item) (domain.Message, error) {
	var disk diskMessage
	err := item.Value(func(value []byte) error {
		return cbor.Unmarshal(value, &disk)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return toDomain(disk)
}

func fromDomain(message domain.Message) diskMessage {
	return diskMessage{
		ID:         message.ID.String(),
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Content:    message.Content,
		CreatedAt:  message.CreatedAt.UnixNano(),
		Read:       message.Read,
		Deleted:    message.Deleted,
	}
}

func toDomain(disk diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:         parsedID,
		SenderID:   disk.SenderID,
		ReceiverID: disk.ReceiverID,
		Content:    disk.Content,
		CreatedAt:  time.Unix(0, disk.CreatedAt).UTC(),
		Read:       disk.Read,
		Deleted:    disk.Deleted,
	}, nil
}
