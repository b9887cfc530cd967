package envvar

const (
	// VoxpipeEnv is the environment variable used to determine the environment
	VoxpipeEnv = "VOXPIPE_ENV"

	// Port is the environment variable used to determine the HTTP port
	Port = "PORT"

	// VoxpipeGRPCPort is the environment variable used to determine the gRPC port
	VoxpipeGRPCPort = "VOXPIPE_GRPC_PORT"

	// WhisperDir is the environment variable pointing at the whisper.cpp checkout
	WhisperDir = "WHISPER_DIR"

	// VoxpipeFFmpegPath overrides the converter binary
	VoxpipeFFmpegPath = "VOXPIPE_FFMPEG_PATH"

	// VoxpipeUploadDir overrides the directory used for temporary uploads
	VoxpipeUploadDir = "VOXPIPE_UPLOAD_DIR"

	// VoxpipeLogLevel overrides the minimum log level
	VoxpipeLogLevel = "VOXPIPE_LOG_LEVEL"

	// VoxpipeLogFile enables file logging to the given path
	VoxpipeLogFile = "VOXPIPE_LOG_FILE"
)
