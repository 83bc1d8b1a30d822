package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

var (
	testKey1 = []byte("this-is-a-32-byte-test-key-12345")
	testKey2 = bytes.Repeat([]byte{7}, 32)
)

func TestNewKeyring(t *testing.T) {
	tests := []struct {
		name    string
		primary string
		keys    map[string][]byte
		wantErr bool
	}{
		{"valid", "k1", map[string][]byte{"k1": testKey1}, false},
		{"short key", "k1", map[string][]byte{"k1": make([]byte, 16)}, true},
		{"primary missing", "k2", map[string][]byte{"k1": testKey1}, true},
		{"colon in id", "a:b", map[string][]byte{"a:b": testKey1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKeyring(tt.primary, tt.keys)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewKeyring() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSealOpen(t *testing.T) {
	k, err := NewSingleKey(testKey1)
	if err != nil {
		t.Fatalf("NewSingleKey() error = %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{"password", "hunter2"},
		{"empty string", ""},
		{"unicode", "contraseña-ñ"},
		{"special chars", "p@$$w0rd!#$%^&*()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := k.Seal(tt.plaintext, "office-1/darby")
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if tt.plaintext == "" {
				if sealed != "" {
					t.Errorf("Seal() of empty string = %q, want empty", sealed)
				}
				return
			}
			if !strings.HasPrefix(sealed, "k1:") {
				t.Errorf("Seal() = %q, want k1: prefix", sealed)
			}
			if strings.Contains(sealed, tt.plaintext) {
				t.Error("sealed value contains plaintext")
			}

			got, err := k.Open(sealed, "office-1/darby")
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if got != tt.plaintext {
				t.Errorf("Open() = %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestSeal_NonceIsRandom(t *testing.T) {
	k, _ := NewSingleKey(testKey1)
	a, _ := k.Seal("same", "b")
	b, _ := k.Seal("same", "b")
	if a == b {
		t.Error("two seals of the same plaintext should differ")
	}
}

func TestOpen_WrongBinding(t *testing.T) {
	k, _ := NewSingleKey(testKey1)
	sealed, _ := k.Seal("hunter2", "office-1/darby")

	if _, err := k.Open(sealed, "office-2/darby"); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Open() with another binding error = %v, want ErrDecryptionFailed", err)
	}
}

func TestOpen_Errors(t *testing.T) {
	k, _ := NewSingleKey(testKey1)
	sealed, _ := k.Seal("hunter2", "b")

	tampered := []byte(sealed)
	tampered[len(tampered)-3] ^= 1

	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"no key id", "abcdef", ErrMalformed},
		{"unknown key", "k9:" + base64.StdEncoding.EncodeToString([]byte("xxxxxxxxxxxxxxxxxxxx")), ErrUnknownKey},
		{"bad base64", "k1:!!!", ErrMalformed},
		{"too short", "k1:" + base64.StdEncoding.EncodeToString([]byte("abc")), ErrMalformed},
		{"tampered", string(tampered), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := k.Open(tt.input, "b")
			if err == nil {
				t.Fatal("Open() should fail")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Open() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRotation(t *testing.T) {
	old, _ := NewSingleKey(testKey1)
	sealed, _ := old.Seal("hunter2", "office-1/benco")

	rotated, err := NewKeyring("k2", map[string][]byte{"k1": testKey1, "k2": testKey2})
	if err != nil {
		t.Fatalf("NewKeyring() error = %v", err)
	}
	if !rotated.NeedsRotation(sealed) {
		t.Error("NeedsRotation() = false for value sealed with k1")
	}

	resealed, err := rotated.Reseal(sealed, "office-1/benco")
	if err != nil {
		t.Fatalf("Reseal() error = %v", err)
	}
	if rotated.NeedsRotation(resealed) {
		t.Error("NeedsRotation() = true after Reseal()")
	}
	if got, _ := rotated.Open(resealed, "office-1/benco"); got != "hunter2" {
		t.Errorf("Open() after Reseal() = %q", got)
	}
	if rotated.NeedsRotation("") {
		t.Error("NeedsRotation(\"\") should be false")
	}
}

func TestParseKeys(t *testing.T) {
	enc1 := base64.StdEncoding.EncodeToString(testKey1)
	enc2 := base64.StdEncoding.EncodeToString(testKey2)

	keys, err := ParseKeys("k1=" + enc1 + ", k2=" + enc2)
	if err != nil {
		t.Fatalf("ParseKeys() error = %v", err)
	}
	if len(keys) != 2 || !bytes.Equal(keys["k2"], testKey2) {
		t.Errorf("ParseKeys() = %v", keys)
	}

	for _, bad := range []string{"", "k1", "k1=notbase64!", "k1=" + base64.StdEncoding.EncodeToString([]byte("short"))} {
		if _, err := ParseKeys(bad); err == nil {
			t.Errorf("ParseKeys(%q) should fail", bad)
		}
	}
}
