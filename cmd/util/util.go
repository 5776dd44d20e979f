package util

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/pgtide/pgtide/wire/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupConnectionFlags adds the backend connection flags to a command
func SetupConnectionFlags(cmd *cobra.Command) {
	key := "host"
	cmd.PersistentFlags().String(key, "localhost", WrapString("The hostname of the backend server"))

	key = "port"
	cmd.PersistentFlags().Int(key, 5432, WrapString("The port of the backend server"))

	key = "user"
	cmd.PersistentFlags().String(key, "", WrapString("The user to authenticate as"))

	key = "database"
	cmd.PersistentFlags().String(key, "", WrapString("The database to connect to (defaults to the user name on the server side)"))

	key = "password"
	cmd.PersistentFlags().String(key, "", WrapString("The password for cleartext authentication (prefer the PGTIDE_PASSWORD env variable)"))

	key = "application-name"
	cmd.PersistentFlags().String(key, "pgtide", WrapString("The application name reported to the server"))

	key = "socket-read-buffer"
	cmd.PersistentFlags().Int(key, common.DefaultReadBufferSize, WrapString("The size of the per-read scratch buffer (in bytes)"))

	key = "socket-write-chunk"
	cmd.PersistentFlags().Int(key, common.DefaultWriteChunkSize, WrapString("The capacity of each pooled write buffer (in bytes)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("pgtide")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetConnectionConfig reads the connection configuration from viper
func GetConnectionConfig() *common.ConnectionConfig {
	return &common.ConnectionConfig{
		Host:            viper.GetString("host"),
		Port:            viper.GetInt("port"),
		User:            viper.GetString("user"),
		Database:        viper.GetString("database"),
		Password:        viper.GetString("password"),
		ApplicationName: viper.GetString("application-name"),
		Socket: common.SocketConfig{
			ReadBufferSize: viper.GetInt("socket-read-buffer"),
			WriteChunkSize: viper.GetInt("socket-write-chunk"),
		},
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
