package contract

import (
	"github.com/google/orderedcode"
)

const (
	prefixState         = int64(0)
	prefixTx            = int64(1)
	prefixVerified      = int64(2)
	prefixReview        = int64(3)
	prefixProductReview = int64(4)
)

func mustKey(items ...interface{}) []byte {
	key, err := orderedcode.Append(nil, items...)
	if err != nil {
		panic(err)
	}
	return key
}

func stateKey() []byte {
	return mustKey(prefixState)
}

func txKey(hash []byte) []byte {
	return mustKey(prefixTx, string(hash))
}

func verifiedKey(user, product string) []byte {
	return mustKey(prefixVerified, user, product)
}

func reviewKey(user, product string) []byte {
	return mustKey(prefixReview, user, product)
}

// productReviewKey orders the reviews of a product by the height that
// recorded them.
func productReviewKey(product string, height int64) []byte {
	return mustKey(prefixProductReview, product, height)
}

func productReviewPrefix(product string) []byte {
	return mustKey(prefixProductReview, product)
}

// prefixEnd returns the smallest key greater than every key starting with
// prefix.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
