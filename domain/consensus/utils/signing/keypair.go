// Package signing signs and verifies point digests with Schnorr signatures
// over secp256k1. A peer is identified by its serialized x-only public key.
package signing

import (
	"github.com/kaspanet/go-secp256k1"
	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/utils/pointhashing"
)

// KeyPair is the signing key of a local peer.
type KeyPair struct {
	keyPair *secp256k1.SchnorrKeyPair
	peerID  externalapi.PeerID
}

// GenerateKeyPair generates a random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	keyPair, err := secp256k1.GenerateSchnorrKeyPair()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate a key pair")
	}
	return newKeyPair(keyPair)
}

// KeyPairFromPrivateKey deserializes a 32 byte private key.
func KeyPairFromPrivateKey(privateKey []byte) (*KeyPair, error) {
	keyPair, err := secp256k1.DeserializeSchnorrPrivateKeyFromSlice(privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to deserialize private key")
	}
	return newKeyPair(keyPair)
}

// KeyPairFromSeed derives a deterministic key pair from seed. Seeds that
// are not valid scalars are rehashed until one is.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	candidate := seed
	for i := 0; i < 16; i++ {
		writer := pointhashing.NewGenesisKeyWriter()
		writer.InfallibleWrite(candidate)
		digest := writer.Finalize()
		keyPair, err := secp256k1.DeserializeSchnorrPrivateKeyFromSlice(digest[:])
		if err == nil {
			return newKeyPair(keyPair)
		}
		candidate = digest[:]
	}
	return nil, errors.New("failed to derive a key pair from seed")
}

func newKeyPair(keyPair *secp256k1.SchnorrKeyPair) (*KeyPair, error) {
	publicKey, err := keyPair.SchnorrPublicKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive public key")
	}
	serialized, err := publicKey.Serialize()
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize public key")
	}
	peerID, err := externalapi.NewPeerIDFromSlice(serialized[:])
	if err != nil {
		return nil, err
	}
	return &KeyPair{keyPair: keyPair, peerID: peerID}, nil
}

// PeerID returns the peer id of the key owner.
func (kp *KeyPair) PeerID() externalapi.PeerID {
	return kp.peerID
}

// PrivateKey returns the serialized private key.
func (kp *KeyPair) PrivateKey() []byte {
	serialized := kp.keyPair.SerializePrivateKey()
	return serialized[:]
}

// Sign signs digest.
func (kp *KeyPair) Sign(digest externalapi.Digest) (externalapi.Signature, error) {
	secpHash := secp256k1.Hash(digest)
	signature, err := kp.keyPair.SchnorrSign(&secpHash)
	if err != nil {
		return nil, errors.Wrap(err, "cannot sign digest")
	}
	serialized := signature.Serialize()
	return externalapi.Signature(serialized[:]).Clone(), nil
}

// Verify returns whether signature is peer's signature over digest.
func Verify(peer externalapi.PeerID, digest externalapi.Digest, signature externalapi.Signature) bool {
	publicKey, err := secp256k1.DeserializeSchnorrPubKey(peer[:])
	if err != nil {
		return false
	}
	schnorrSignature, err := secp256k1.DeserializeSchnorrSignatureFromSlice(signature)
	if err != nil {
		return false
	}
	secpHash := secp256k1.Hash(digest)
	return publicKey.SchnorrVerify(&secpHash, schnorrSignature)
}
