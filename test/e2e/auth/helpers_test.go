package auth_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/marquee/pkg/authsdk"
)

/*
 * Common constants and helper functions for the end-to-end tests.
 * This includes container setup, account seeding and assertions.
 */

const (
	testImageName = "marquee-test:latest"

	// publicOrigin is the configured base URL. The SDK sends it as Origin
	// since the mapped host port differs from it.
	publicOrigin = "http://marquee.test"

	adminUsername = "admin"
	adminPassword = "Admin123!secret"
	userPassword  = "User123!secret"

	signingKeys = "s1=bWFycXVlZS1lMmUtc2lnbmluZy1rZXktMDAwMDAwMDE"
	secretKeys  = "v1=bWFycXVlZS1lMmUtc2VjcmV0cy1rZXktMDAwMDAwMDE"
)

// TestMain builds the Docker image once before all tests and removes it
// after they complete.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building Marquee Docker image...")

	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up Marquee Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	cmd := exec.CommandContext(context.Background(), "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/auth/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout
	return cmd.Run()
}

func cleanupDockerImage() {
	cmd := exec.CommandContext(context.Background(), "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // image might not exist
}

// instance is one running Marquee container.
type instance struct {
	container testcontainers.Container
	client    *authsdk.SDKClient
}

// relaxedThrottles lifts the per-IP limits so tests making many rapid
// requests are not rejected.
var relaxedThrottles = map[string]string{
	"MARQUEE_THROTTLE_STRICT_REQUESTS":   "1000",
	"MARQUEE_THROTTLE_STRICT_BURST":      "1000",
	"MARQUEE_THROTTLE_MODERATE_REQUESTS": "1000",
	"MARQUEE_THROTTLE_MODERATE_BURST":    "1000",
}

// setupMarquee starts the service and seeds an admin account with
// marquectl inside the container.
func setupMarquee(t *testing.T, extraEnv map[string]string) *instance {
	t.Helper()
	ctx := context.Background()

	env := map[string]string{
		"MARQUEE_ENV":             "test",
		"MARQUEE_SERVER_BASE_URL": publicOrigin,
		"MARQUEE_KEYS_SIGNING":    signingKeys,
		"MARQUEE_KEYS_SECRETS":    secretKeys,
		"MARQUEE_LOGGING_LEVEL":   "info",
		"MARQUEE_LOGGING_FORMAT":  "json",
	}
	for k, v := range extraEnv {
		env[k] = v
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImageName,
			ExposedPorts: []string{"8080/tcp"},
			Env:          env,
			WaitingFor: wait.ForHTTP("/livez").
				WithPort("8080/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	client := authsdk.NewSDKClient(fmt.Sprintf("http://%s:%s", host, mappedPort.Port()))
	client.Origin = publicOrigin

	inst := &instance{container: container, client: client}
	inst.marquectl(t, "account", "create", adminUsername, "--admin", "--password", adminPassword)
	return inst
}

// marquectl runs the admin CLI inside the container and returns its output.
func (i *instance) marquectl(t *testing.T, args ...string) string {
	t.Helper()
	code, out, err := i.container.Exec(context.Background(),
		append([]string{"marquectl"}, args...), tcexec.Multiplexed())
	require.NoError(t, err)
	body, err := io.ReadAll(out)
	require.NoError(t, err)
	require.Equal(t, 0, code, "marquectl %v: %s", args, body)
	return string(body)
}

// createUser adds a plain account and returns its id.
func (i *instance) createUser(t *testing.T, username string) string {
	t.Helper()
	i.marquectl(t, "account", "create", username, "--password", userPassword)
	s := i.login(t, username, userPassword)
	me, err := s.Me(t.Context())
	require.NoError(t, err)
	return me.AccountID
}

func (i *instance) login(t *testing.T, username, password string) *authsdk.Session {
	t.Helper()
	s, err := i.client.Login(t.Context(), username, password)
	require.NoError(t, err, "login as %s", username)
	return s
}

// assertAPIError checks err is an *APIError with the given code.
func assertAPIError(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, code, apiErr.Code, "unexpected error: %v", err)
}
