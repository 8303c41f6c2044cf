/*
Package config loads and validates client configuration.

Settings are resolved from three layers, later layers overriding earlier
ones:

	NewDefault()        compiled-in defaults
	LoadFromFile(path)  YAML file
	LoadFromEnv()       WEBHDFS_* environment variables

A typical file:

	account:
	  host: myaccount.azuredatalakestore.net
	  scheme: https
	transport:
	  timeout: 60s
	  user_agent_suffix: ingest-job
	  rate_limit: 200
	  rate_burst: 50
	  retry:
	    max_retries: 4
	    initial_delay: 1s
	    max_delay: 30s
	    multiplier: 4
	    jitter: true
	streams:
	  read_buffer_size: 4MiB
	  write_buffer_size: 4MiB
	summary:
	  workers: 16
	  list_page_size: 4000
	monitoring:
	  metrics:
	    enabled: true
	    port: 9090
	    namespace: webhdfs
	  logging:
	    level: INFO
	    format: json

Buffer sizes accept any form understood by go-humanize ("4MiB", "512KB",
"1048576"). Validate reports problems as INVALID_CONFIG errors.

Environment variables:

	WEBHDFS_HOST, WEBHDFS_SCHEME, WEBHDFS_TOKEN
	WEBHDFS_TIMEOUT, WEBHDFS_USER_AGENT_SUFFIX, WEBHDFS_LATENCY_TRACKING
	WEBHDFS_RATE_LIMIT, WEBHDFS_RATE_BURST
	WEBHDFS_MAX_RETRIES, WEBHDFS_RETRY_INITIAL_DELAY, WEBHDFS_RETRY_MAX_DELAY
	WEBHDFS_READ_BUFFER_SIZE, WEBHDFS_WRITE_BUFFER_SIZE
	WEBHDFS_SUMMARY_WORKERS, WEBHDFS_LIST_PAGE_SIZE
	WEBHDFS_METRICS_ENABLED, WEBHDFS_METRICS_PORT
	WEBHDFS_LOG_LEVEL, WEBHDFS_LOG_FORMAT
*/
package config
