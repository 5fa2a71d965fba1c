package drone

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"swarm/internal/swarm"
)

// Severity impacts subtracted from the aggregate health score when a check
// fails. Hand-tuned; kept named so the weights stay visible and testable.
const (
	storeCheckPenalty     = 30
	aiProbePenalty        = 20
	authConfigPenalty     = 15
	memoryPenalty         = 20
	diskPenalty           = 25
	artifactsPenalty      = 10
	checkExceptionPenalty = 10
)

// Resource pressure thresholds for the memory and disk checks.
const (
	memoryUsedPercentLimit = 90.0
	diskFreePercentFloor   = 10.0
)

// healthCheck is one independent probe in the verification battery.
type healthCheck struct {
	name     string
	severity int
	run      func(ctx context.Context) (healthy bool, issues []string, err error)
}

// verifierDrone runs the fixed battery of health checks. A failing or
// panicking check never aborts the battery; every check always runs.
type verifierDrone struct {
	base
	httpClient *http.Client
}

func newVerifier(id string, deps Deps) *verifierDrone {
	v := &verifierDrone{base: newBase(id, swarm.KindVerification, deps)}
	timeout := deps.Config.AIService.ProbeTimeout()
	v.httpClient = &http.Client{Timeout: timeout}
	return v
}

func (v *verifierDrone) Execute(ctx context.Context, task *swarm.Task) *swarm.Result {
	return v.run(ctx, task, func(ctx context.Context) (map[string]any, []string, error) {
		score := 100
		var issues []string
		failed := 0

		checks := v.checks()
		for _, check := range checks {
			healthy, checkIssues, err := v.runCheck(ctx, check)
			if err != nil {
				score -= checkExceptionPenalty
				failed++
				issues = append(issues, fmt.Sprintf("%s check error: %v", check.name, err))
				continue
			}
			if !healthy {
				score -= check.severity
				failed++
				issues = append(issues, checkIssues...)
			}
		}
		if score < 0 {
			score = 0
		}

		data := map[string]any{
			"health_score":  score,
			"checks_run":    len(checks),
			"checks_failed": failed,
			"issues":        issues,
		}
		return data, recommendationsFor(issues), nil
	})
}

// runCheck isolates one probe so a panic inside it degrades the score
// instead of killing the battery.
func (v *verifierDrone) runCheck(ctx context.Context, check healthCheck) (healthy bool, issues []string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			healthy = false
			issues = nil
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return check.run(ctx)
}

func (v *verifierDrone) checks() []healthCheck {
	return []healthCheck{
		{name: "data_store", severity: storeCheckPenalty, run: v.checkStore},
		{name: "ai_service", severity: aiProbePenalty, run: v.checkAIService},
		{name: "auth_config", severity: authConfigPenalty, run: v.checkAuthConfig},
		{name: "memory", severity: memoryPenalty, run: v.checkMemory},
		{name: "disk", severity: diskPenalty, run: v.checkDisk},
		{name: "artifacts", severity: artifactsPenalty, run: v.checkArtifacts},
	}
}

func (v *verifierDrone) checkStore(ctx context.Context) (bool, []string, error) {
	report, err := v.deps.Store.CheckHealth(ctx)
	if err != nil {
		return false, nil, err
	}
	var issues []string
	if !report.DatabaseReadable {
		issues = append(issues, "data store is not readable")
	}
	if len(report.MissingTables) > 0 {
		issues = append(issues, fmt.Sprintf("data store missing tables: %s", strings.Join(report.MissingTables, ", ")))
	}
	if report.DatabaseReadable && !report.IntegrityCheck {
		issues = append(issues, "data store integrity check failed")
	}
	return len(issues) == 0, issues, nil
}

func (v *verifierDrone) checkAIService(ctx context.Context) (bool, []string, error) {
	url := strings.TrimSpace(v.deps.Config.AIService.URL)
	if url == "" {
		return false, []string{"ai service endpoint is not configured"}, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, nil, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, []string{fmt.Sprintf("ai service probe failed: %v", err)}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return false, []string{fmt.Sprintf("ai service returned status %d", resp.StatusCode)}, nil
	}
	return true, nil, nil
}

func (v *verifierDrone) checkAuthConfig(ctx context.Context) (bool, []string, error) {
	if strings.TrimSpace(v.deps.Config.AIService.APIKey) == "" {
		return false, []string{"auth configuration incomplete: ai service api key is missing"}, nil
	}
	return true, nil, nil
}

func (v *verifierDrone) checkMemory(ctx context.Context) (bool, []string, error) {
	stats, err := v.deps.Health.Memory()
	if err != nil {
		return false, nil, err
	}
	if used := stats.UsedPercent(); used > memoryUsedPercentLimit {
		return false, []string{fmt.Sprintf("memory pressure high: %.1f%% used", used)}, nil
	}
	return true, nil, nil
}

func (v *verifierDrone) checkDisk(ctx context.Context) (bool, []string, error) {
	stats, err := v.deps.Health.Disk(v.deps.Config.Paths.DataDir)
	if err != nil {
		return false, nil, err
	}
	if free := stats.FreePercent(); free < diskFreePercentFloor {
		return false, []string{fmt.Sprintf("disk headroom low: %.1f%% free", free)}, nil
	}
	return true, nil, nil
}

// checkArtifacts verifies the critical on-disk artifacts the daemon depends
// on: its directories and the database file.
func (v *verifierDrone) checkArtifacts(ctx context.Context) (bool, []string, error) {
	var issues []string
	for _, dir := range []string{v.deps.Config.Paths.DataDir, v.deps.Config.Paths.LogDir} {
		info, err := os.Stat(dir)
		switch {
		case err != nil:
			issues = append(issues, fmt.Sprintf("missing directory artifact: %s", dir))
		case !info.IsDir():
			issues = append(issues, fmt.Sprintf("artifact path is not a directory: %s", dir))
		}
	}
	if _, err := os.Stat(v.deps.Store.Path()); err != nil {
		issues = append(issues, fmt.Sprintf("missing database artifact: %s", v.deps.Store.Path()))
	}
	return len(issues) == 0, issues, nil
}

// remediation pairs an issue keyword with its suggested fix. First match
// wins; unmatched issues fall back to a generic message.
var remediations = []struct {
	keyword    string
	suggestion string
}{
	{"data store", "submit a self_healing task with healing_type=store_repair"},
	{"integrity", "submit a self_healing task with healing_type=store_repair"},
	{"ai service", "verify the [ai_service] url and credentials in the configuration"},
	{"auth", "set ai_service.api_key in the configuration"},
	{"memory", "reduce worker_pool_size or investigate memory growth in the host process"},
	{"disk", "free space under the data directory or move data_dir to a larger volume"},
	{"directory", "run `swarm config init` and restart to recreate missing directories"},
	{"database artifact", "restart the daemon to recreate the database"},
}

func recommendationsFor(issues []string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, issue := range issues {
		lowered := strings.ToLower(issue)
		matched := false
		for _, r := range remediations {
			if strings.Contains(lowered, r.keyword) {
				add(r.suggestion)
				matched = true
				break
			}
		}
		if !matched {
			add("investigate: " + issue)
		}
	}
	return out
}
