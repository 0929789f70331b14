package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/skip2/go-qrcode"
)

// ConfirmationPayload is what a venue scanner decrypts from the QR.
type ConfirmationPayload struct {
	OrderID          string    `json:"order_id"`
	OrderNumber      string    `json:"order_number"`
	UserID           string    `json:"user_id"`
	EventID          string    `json:"event_id"`
	EventBookingDate time.Time `json:"event_booking_date,omitempty"`
}

type QRGenerator struct {
	secret []byte
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:]}
}

// GenerateConfirmationQR encrypts the order payload and renders it as a PNG.
func (q *QRGenerator) GenerateConfirmationQR(payload ConfirmationPayload) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, q.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

// GenerateConfirmationQRBase64 wraps GenerateConfirmationQR for embedding in
// JSON events.
func (q *QRGenerator) GenerateConfirmationQRBase64(payload ConfirmationPayload) (string, error) {
	png, err := q.GenerateConfirmationQR(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
