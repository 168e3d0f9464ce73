package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Avi18971911/Tracelane/internal/db/elasticsearch/bootstrapper"
	"github.com/Avi18971911/Tracelane/internal/db/elasticsearch/client"
	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

const maxClaimAttempts = 64

// ElasticsearchRegistry stores two kinds of documents in the inventory index: a "name" document
// keyed by (scope, parent, name) holding the assigned ID, and a "claim" document keyed by
// (scope, ID) holding the name key that owns the ID. Both are written with create-only semantics,
// so replicas racing on the same name walk the same claim sequence and converge on one ID.
type ElasticsearchRegistry struct {
	ac     client.TracelaneClient
	cache  *ristretto.Cache
	logger *zap.Logger
}

func NewElasticsearchRegistry(
	ac client.TracelaneClient,
	cache *ristretto.Cache,
	logger *zap.Logger,
) *ElasticsearchRegistry {
	return &ElasticsearchRegistry{
		ac:     ac,
		cache:  cache,
		logger: logger,
	}
}

func (er *ElasticsearchRegistry) Resolve(
	ctx context.Context,
	scope Scope,
	parentID int32,
	name string,
) (int32, bool, error) {
	nameKey := getNameKey(scope, parentID, name)
	if cached, found := er.cache.Get(nameKey); found {
		if id, ok := cached.(int32); ok {
			return id, true, nil
		}
	}

	doc, found, err := er.ac.Get(ctx, getNameDocumentId(nameKey), bootstrapper.InventoryIndexName)
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve %s %q: %w", scope, name, err)
	}
	if !found {
		return 0, false, nil
	}
	id, err := readId(doc)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read id of %s %q: %w", scope, name, err)
	}
	er.cache.Set(nameKey, id, 1)
	return id, true, nil
}

func (er *ElasticsearchRegistry) RegisterAndResolve(
	ctx context.Context,
	scope Scope,
	parentID int32,
	name string,
) (int32, error) {
	if name == "" {
		return 0, ErrEmptyName
	}
	id, found, err := er.Resolve(ctx, scope, parentID, name)
	if err != nil {
		return 0, err
	}
	if found {
		return id, nil
	}

	nameKey := getNameKey(scope, parentID, name)
	candidate, err := er.claimId(ctx, scope, nameKey)
	if err != nil {
		return 0, err
	}

	err = er.ac.Create(
		ctx,
		getNameDocumentId(nameKey),
		client.DocumentMap{
			"kind":          "name",
			"scope":         scope.String(),
			"parent_id":     parentID,
			"name":          name,
			"entity_id":     candidate,
			"registered_at": time.Now().UTC(),
		},
		bootstrapper.InventoryIndexName,
	)
	if errors.Is(err, client.ErrDocumentExists) {
		// lost the race, the winner's id is authoritative
		id, found, err = er.Resolve(ctx, scope, parentID, name)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, fmt.Errorf("%s %q reported as existing but could not be read", scope, name)
		}
		return id, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to register %s %q: %w", scope, name, err)
	}

	er.logger.Info(
		"Registered new entity",
		zap.String("scope", scope.String()),
		zap.Int32("parentId", parentID),
		zap.String("name", name),
		zap.Int32("id", candidate),
	)
	er.cache.Set(nameKey, candidate, 1)
	er.cache.Set(getClaimKey(scope, candidate), true, 1)
	return candidate, nil
}

func (er *ElasticsearchRegistry) Contains(ctx context.Context, scope Scope, id int32) (bool, error) {
	claimKey := getClaimKey(scope, id)
	if _, found := er.cache.Get(claimKey); found {
		return true, nil
	}
	_, found, err := er.ac.Get(ctx, claimKey, bootstrapper.InventoryIndexName)
	if err != nil {
		return false, fmt.Errorf("failed to look up %s id %d: %w", scope, id, err)
	}
	if found {
		er.cache.Set(claimKey, true, 1)
	}
	return found, nil
}

// claimId walks a deterministic claim sequence starting at the hash of the name key until it owns
// a claim document, or finds one already owned by the same name key.
func (er *ElasticsearchRegistry) claimId(ctx context.Context, scope Scope, nameKey string) (int32, error) {
	candidate := initialCandidate(nameKey)
	for i := 0; i < maxClaimAttempts; i++ {
		claimKey := getClaimKey(scope, candidate)
		err := er.ac.Create(
			ctx,
			claimKey,
			client.DocumentMap{
				"kind":      "claim",
				"scope":     scope.String(),
				"entity_id": candidate,
				"name_key":  nameKey,
			},
			bootstrapper.InventoryIndexName,
		)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, client.ErrDocumentExists) {
			return 0, fmt.Errorf("failed to claim %s id %d: %w", scope, candidate, err)
		}

		doc, found, err := er.ac.Get(ctx, claimKey, bootstrapper.InventoryIndexName)
		if err != nil {
			return 0, fmt.Errorf("failed to read claim for %s id %d: %w", scope, candidate, err)
		}
		if found && doc["name_key"] == nameKey {
			return candidate, nil
		}
		candidate = nextCandidate(candidate)
	}
	return 0, fmt.Errorf("no free %s id after %d attempts", scope, maxClaimAttempts)
}

func initialCandidate(nameKey string) int32 {
	candidate := int32(xxhash.Sum64String(nameKey) & 0x7fffffff)
	if candidate == 0 {
		return 1
	}
	return candidate
}

func nextCandidate(candidate int32) int32 {
	if candidate == 0x7fffffff {
		return 1
	}
	return candidate + 1
}

func getNameKey(scope Scope, parentID int32, name string) string {
	return fmt.Sprintf("%d;%d;%s", scope, parentID, name)
}

func getNameDocumentId(nameKey string) string {
	hash := sha256.Sum256([]byte(nameKey))
	return "name_" + hex.EncodeToString(hash[:])
}

func getClaimKey(scope Scope, id int32) string {
	return fmt.Sprintf("claim_%d_%d", scope, id)
}

func readId(doc client.DocumentMap) (int32, error) {
	switch value := doc["entity_id"].(type) {
	case json.Number:
		id, err := value.Int64()
		if err != nil {
			return 0, fmt.Errorf("failed to convert entity_id: %w", err)
		}
		return int32(id), nil
	case float64:
		return int32(value), nil
	default:
		return 0, fmt.Errorf("unexpected entity_id type %T", value)
	}
}
