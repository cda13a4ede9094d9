package env

import (
	"os"
)

const (
	BaseURL          = "CHAT_BASE_URL"
	WebsocketURL     = "CHAT_WS_URL"
	Token            = "CHAT_TOKEN"
	Source           = "CHAT_SOURCE"
	LogLevel         = "CHAT_LOG_LEVEL"
	LogFormat        = "CHAT_LOG_FORMAT"
	ChatRedisURL     = "CHAT_REDIS_URL"
	ChatRedisPass    = "CHAT_REDIS_PASS"
	AWSRegion        = "AWS_REGION"
	AWSID            = "AWS_ID"
	AWSSecret        = "AWS_SECRET"
	AWSToken         = "AWS_TOKEN"
	DynamoDBEndpoint = "DYNAMODB_ENDPOINT"
	TestRedisURL     = "CHAT_TEST_REDIS_URL"
)

// Prefix is shared by every CHAT_* key and by the viper env binding.
const Prefix = "CHAT"

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func MustGet(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic("env: required environment variable not set: " + key)
	}
	return val
}
