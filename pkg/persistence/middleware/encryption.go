package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/reveriehq/reverie/pkg/domain"
	"github.com/reveriehq/reverie/pkg/ports"
)

// envelopeKey marks the synthetic node that carries the ciphertext.
const envelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new data. Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are old keys tried when decryption fails, enabling
	// zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.TreeStore
	config EncryptionConfig
}

// NewEncryptionMiddleware encrypts trees at rest using AES-GCM. The stored
// record keeps its ID and character ID in the clear (they key the store and
// its character index); all conversation content lives in the envelope.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.TreeStore) ports.TreeStore {
		return &encryptionMiddleware{next: next, config: config}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, tree *domain.DialogueTree) error {
	plainText, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to marshal tree: %w", err)
	}
	cipherText, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt tree: %w", err)
	}

	envelope := &domain.DialogueTree{
		ID:          tree.ID,
		CharacterID: tree.CharacterID,
		CurrentID:   domain.RootNodeID,
		Nodes: map[string]*domain.DialogueNode{
			domain.RootNodeID: {
				ID: domain.RootNodeID,
				ParsedContent: map[string]any{
					envelopeKey: base64.StdEncoding.EncodeToString(cipherText),
				},
			},
		},
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, treeID string) (*domain.DialogueTree, error) {
	envelope, err := m.next.Load(ctx, treeID)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) FindByCharacter(ctx context.Context, characterID string) (*domain.DialogueTree, error) {
	envelope, err := m.next.FindByCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, treeID string) error {
	return m.next.Delete(ctx, treeID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// open unwraps and decrypts a stored envelope. A record without an envelope
// fails closed: once encryption is configured, plain records are an error.
func (m *encryptionMiddleware) open(envelope *domain.DialogueTree) (*domain.DialogueTree, error) {
	root, ok := envelope.Node(domain.RootNodeID)
	if !ok || root.ParsedContent == nil {
		return nil, errors.New("stored tree is missing its encrypted envelope")
	}
	encoded, ok := root.ParsedContent[envelopeKey].(string)
	if !ok {
		return nil, errors.New("stored tree is missing its encrypted envelope")
	}

	cipherText, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	plainText, err := decryptWithRotation(cipherText, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt tree: %w", err)
	}

	var tree domain.DialogueTree
	if err := json.Unmarshal(plainText, &tree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted tree: %w", err)
	}
	return &tree, nil
}

func encrypt(plainText, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plainText, nil), nil
}

func decrypt(cipherText, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(cipherText) < gcm.NonceSize() {
		return nil, errors.New("ciphertext shorter than nonce")
	}
	nonce, sealed := cipherText[:gcm.NonceSize()], cipherText[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}

func decryptWithRotation(cipherText, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	plainText, err := decrypt(cipherText, activeKey)
	if err == nil {
		return plainText, nil
	}
	for _, key := range fallbackKeys {
		if plainText, err := decrypt(cipherText, key); err == nil {
			return plainText, nil
		}
	}
	return nil, errors.New("no configured key can decrypt this record")
}
