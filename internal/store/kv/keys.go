package kv

import (
	"fmt"

	"github.com/google/orderedcode"
)

// key prefixes
const (
	// prefixes are unique across the store's db
	prefixOrder            = int64(0)
	prefixDelivery         = int64(1)
	prefixDeliveryLine     = int64(2)
	prefixDeliveryCode     = int64(3)
	prefixDeliveryUser     = int64(4)
	prefixDeliveryUserProd = int64(5)
	prefixReview           = int64(6)
	prefixReviewUserProd   = int64(7)
	prefixReviewProduct    = int64(8)
	prefixRating           = int64(9)
	prefixProduct          = int64(10)
)

func mustKey(items ...interface{}) []byte {
	key, err := orderedcode.Append(nil, items...)
	if err != nil {
		panic(err)
	}
	return key
}

func orderKey(id string) []byte {
	return mustKey(prefixOrder, id)
}

func deliveryKey(id string) []byte {
	return mustKey(prefixDelivery, id)
}

func deliveryLineKey(order, product string) []byte {
	return mustKey(prefixDeliveryLine, order, product)
}

func deliveryLinePrefix(order string) []byte {
	return mustKey(prefixDeliveryLine, order)
}

func deliveryCodeKey(code string) []byte {
	return mustKey(prefixDeliveryCode, code)
}

// deliveryUserKey orders a user's records by creation time, with the id
// breaking ties.
func deliveryUserKey(user string, createdAt int64, id string) []byte {
	return mustKey(prefixDeliveryUser, user, createdAt, id)
}

func deliveryUserPrefix(user string) []byte {
	return mustKey(prefixDeliveryUser, user)
}

// deliveryUserProductKey indexes Delivered records by (user, product).
func deliveryUserProductKey(user, product, id string) []byte {
	return mustKey(prefixDeliveryUserProd, user, product, id)
}

func deliveryUserProductPrefix(user, product string) []byte {
	return mustKey(prefixDeliveryUserProd, user, product)
}

func reviewKey(id string) []byte {
	return mustKey(prefixReview, id)
}

func reviewPrefix() []byte {
	return mustKey(prefixReview)
}

func reviewUserProductKey(user, product string) []byte {
	return mustKey(prefixReviewUserProd, user, product)
}

func reviewProductKey(product string, createdAt int64, id string) []byte {
	return mustKey(prefixReviewProduct, product, createdAt, id)
}

func reviewProductPrefix(product string) []byte {
	return mustKey(prefixReviewProduct, product)
}

func ratingKey(product string) []byte {
	return mustKey(prefixRating, product)
}

func productKey(product string) []byte {
	return mustKey(prefixProduct, product)
}

func productPrefix() []byte {
	return mustKey(prefixProduct)
}

func parseProductKey(key []byte) (string, error) {
	var (
		prefix  int64
		product string
	)
	remaining, err := orderedcode.Parse(string(key), &prefix, &product)
	if err != nil {
		return "", fmt.Errorf("failed to parse product key: %w", err)
	}
	if len(remaining) != 0 {
		return "", fmt.Errorf("unexpected remainder in key: %q", remaining)
	}
	return product, nil
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, for use as an iterator end bound.
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

// lastString returns the id at the end of a time ordered index key
// (prefix, owner, createdAt, id).
func lastString(key []byte) (string, error) {
	var (
		prefix    int64
		owner, id string
		createdAt int64
	)
	remaining, err := orderedcode.Parse(string(key), &prefix, &owner, &createdAt, &id)
	if err != nil {
		return "", fmt.Errorf("failed to parse index key: %w", err)
	}
	if len(remaining) != 0 {
		return "", fmt.Errorf("unexpected remainder in key: %q", remaining)
	}
	return id, nil
}
