package storage

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// CompletedName is the object name of the completion marker.
	CompletedName = "completed"
	// FirstBookmarkName is the object name of the first-bookmark record.
	FirstBookmarkName = "first_bookmark.json"
	// PartitionSuffix is appended to the year of a partition object.
	PartitionSuffix = ".json"
)

// UserPrefix returns the prefix shared by every object of a user.
func UserPrefix(username string) string {
	return username + "/"
}

// PartitionKey returns the key of a user's year partition.
func PartitionKey(username string, year int) string {
	return fmt.Sprintf("%s%d%s", UserPrefix(username), year, PartitionSuffix)
}

// CompletedKey returns the key of a user's completion marker.
func CompletedKey(username string) string {
	return UserPrefix(username) + CompletedName
}

// FirstBookmarkKey returns the key of a user's first-bookmark record.
func FirstBookmarkKey(username string) string {
	return UserPrefix(username) + FirstBookmarkName
}

// ParsePartitionKey extracts username and year from a partition key.
func ParsePartitionKey(key string) (username string, year int, err error) {
	username, name, ok := strings.Cut(key, "/")
	if !ok || username == "" || !strings.HasSuffix(name, PartitionSuffix) {
		return "", 0, fmt.Errorf("invalid partition key: %s", key)
	}
	year, err = strconv.Atoi(strings.TrimSuffix(name, PartitionSuffix))
	if err != nil {
		return "", 0, fmt.Errorf("invalid partition key: %s", key)
	}
	return username, year, nil
}

// Owner returns the username segment of a key.
func Owner(key string) string {
	owner, _, _ := strings.Cut(key, "/")
	return owner
}
