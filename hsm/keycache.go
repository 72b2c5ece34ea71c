package hsm

// KeyCache is an in-memory registry of what the process has learned about
// inserted hardware tokens: verified PINs, exported public keys, and the
// mapping from logical key names to token serials.
//
// Not goroutine safe. The token workflow is single-threaded; callers
// running operations concurrently must serialize access externally.
type KeyCache struct {
	pins    map[uint32]string
	pubKeys map[uint32][]byte
	serials map[string]uint32
}

// NewKeyCache creates an empty cache.
func NewKeyCache() *KeyCache {
	return &KeyCache{
		pins:    make(map[uint32]string),
		pubKeys: make(map[uint32][]byte),
		serials: make(map[string]uint32),
	}
}

// SetPIN records a verified PIN for a serial. A PIN that is already cached
// is never overwritten; the first verified entry wins.
func (c *KeyCache) SetPIN(serial uint32, pin string) {
	if _, ok := c.pins[serial]; ok {
		return
	}
	c.pins[serial] = pin
}

// PIN returns the cached PIN for a serial.
func (c *KeyCache) PIN(serial uint32) (string, bool) {
	pin, ok := c.pins[serial]
	return pin, ok
}

// SetPublicKey records a token's exported public key PEM.
func (c *KeyCache) SetPublicKey(serial uint32, pubKeyPEM []byte) {
	c.pubKeys[serial] = pubKeyPEM
}

// PublicKey returns the cached public key PEM for a serial.
func (c *KeyCache) PublicKey(serial uint32) ([]byte, bool) {
	pub, ok := c.pubKeys[serial]
	return pub, ok
}

// SetSerial records which token holds the key known under a logical name.
func (c *KeyCache) SetSerial(keyName string, serial uint32) {
	c.serials[keyName] = serial
}

// Serial returns the token serial recorded for a logical key name.
func (c *KeyCache) Serial(keyName string) (uint32, bool) {
	serial, ok := c.serials[keyName]
	return serial, ok
}
