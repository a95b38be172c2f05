package dotenv

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Load reads .env from the working directory (or the explicitly named files)
// into the process environment. A missing file is not an error.
func Load(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}
