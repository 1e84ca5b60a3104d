package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/mailrelay/internal/crypto"
	"github.com/dgellow/mailrelay/internal/log"
	"github.com/dgellow/mailrelay/internal/session"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ session.Store = (*FirestoreStore)(nil)
var _ Sweeper = (*FirestoreStore)(nil)

// Firestore batch write limit
const maxBatchSize = 500

// FirestoreStore keeps sessions in a Firestore collection, one document per session ID.
// Firestore has no per-document TTL on the client side, so expired documents are
// filtered on read and removed by CleanupExpired.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	encryptor  crypto.Encryptor
	now        func() time.Time
}

// NewFirestoreStore creates a Firestore-backed session store
func NewFirestoreStore(ctx context.Context, projectID, database, collection string, encryptor crypto.Encryptor) (*FirestoreStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	// Firestore client with custom database
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("firestore", "Session store ready", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStore{
		client:     client,
		collection: collection,
		encryptor:  encryptor,
		now:        time.Now,
	}, nil
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*session.Session, error) {
	doc, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session from Firestore: %w", err)
	}

	var record sessionRecord
	if err := doc.DataTo(&record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	sess, err := record.open(s.encryptor)
	if err != nil {
		return nil, err
	}
	if sess.IsExpired(s.now()) {
		return nil, session.ErrSessionNotFound
	}
	return sess, nil
}

func (s *FirestoreStore) Set(ctx context.Context, sess *session.Session) error {
	record, err := sealSession(s.encryptor, sess)
	if err != nil {
		return err
	}
	if _, err := s.client.Collection(s.collection).Doc(sess.ID).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to store session in Firestore: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, id string) error {
	if _, err := s.client.Collection(s.collection).Doc(id).Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("failed to delete session from Firestore: %w", err)
	}
	return nil
}

// CleanupExpired deletes sessions whose expiry has passed
func (s *FirestoreStore) CleanupExpired(ctx context.Context) (int, error) {
	iter := s.client.Collection(s.collection).
		Where("expires_at", "<=", s.now()).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	batch := s.client.Batch()
	batchSize := 0

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate expired sessions: %w", err)
		}

		batch.Delete(doc.Ref)
		batchSize++
		count++

		if batchSize >= maxBatchSize {
			if _, err := batch.Commit(ctx); err != nil {
				return count, fmt.Errorf("failed to commit batch: %w", err)
			}
			batch = s.client.Batch()
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if _, err := batch.Commit(ctx); err != nil {
			return count, fmt.Errorf("failed to commit final batch: %w", err)
		}
	}

	return count, nil
}

// Close closes the Firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
