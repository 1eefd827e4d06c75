package envvar

const (
	// LocalgenEnv is the environment variable used to determine the environment
	LocalgenEnv = "LOCALGEN_ENV"

	// LocalgenConfig is the environment variable used to locate the config file
	LocalgenConfig = "LOCALGEN_CONFIG"

	// LocalgenServerHTTPPort is the environment variable used to determine the HTTP port
	LocalgenServerHTTPPort = "LOCALGEN_SERVER_HTTP_PORT"

	// LocalgenServerGRPCPort is the environment variable used to determine the gRPC port
	LocalgenServerGRPCPort = "LOCALGEN_SERVER_GRPC_PORT"

	// LocalgenModelsPath overrides the directory models are resolved from
	LocalgenModelsPath = "LOCALGEN_MODELS_PATH"

	// LocalgenModelPath overrides the configured model path
	LocalgenModelPath = "LOCALGEN_MODEL_PATH"

	// LocalgenLogLevel overrides the configured log level
	LocalgenLogLevel = "LOCALGEN_LOG_LEVEL"

	// LocalgenRelayBackendURL overrides the inference server URL used by the relay
	LocalgenRelayBackendURL = "LOCALGEN_RELAY_BACKEND_URL"

	// LocalgenRelayRedisAddr enables the Redis session store for the relay
	LocalgenRelayRedisAddr = "LOCALGEN_RELAY_REDIS_ADDR"
)
