package e2e

import (
	"os"
	"testing"
)

// runOnAllConfigs is a helper that runs a test on all configurations.
// S3 configurations join when FILESRV_E2E_S3 is set (needs Localstack).
func runOnAllConfigs(t *testing.T, testFunc func(t *testing.T, tc *TestContext)) {
	t.Helper()

	configs := AllConfigurations()

	if os.Getenv("FILESRV_E2E_S3") != "" {
		client := newLocalstackClient(t)
		if !localstackAvailable(client) {
			t.Fatal("FILESRV_E2E_S3 is set but Localstack is not reachable")
		}
		for _, config := range S3Configurations() {
			setupS3Config(t, client, config)
			configs = append(configs, config)
		}
	}

	for _, config := range configs {
		t.Run(config.Name, func(t *testing.T) {
			tc := NewTestContext(t, config)
			defer tc.Cleanup()

			testFunc(t, tc)
		})
	}
}

// writeLocal creates a client-side file with the given content.
func writeLocal(t *testing.T, path string, data []byte) {
	t.Helper()

	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write local file: %v", err)
	}
}
