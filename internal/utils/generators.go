package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

func GeneratePaymentID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("pay_%d_%06d", timestamp, randomNum.Int64())
}

// GenerateMerchantOrderID builds the idempotency key shared with the payment
// gateway. Unique per payment attempt, not per intent: a retried initiation
// gets a fresh one.
func GenerateMerchantOrderID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999999))
	return fmt.Sprintf("MT%d%09d", timestamp, randomNum.Int64())
}

