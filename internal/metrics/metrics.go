package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style counters, in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)
	llmCompletions = make(map[llmKey]int64)
	cacheLookups   = make(map[cacheKey]int64)
	pipelineFails  = make(map[failKey]int64)

	quotaRejections  int64
	webhookDelivered = make(map[string]int64)
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type llmKey struct {
	Provider string
	Model    string
	Success  string
}

type cacheKey struct {
	Task   string
	Result string
}

type failKey struct {
	Task  string
	Phase string
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordLLMCompletion counts one completion call.
func RecordLLMCompletion(provider, model string, success bool) {
	mu.Lock()
	defer mu.Unlock()
	llmCompletions[llmKey{Provider: provider, Model: model, Success: boolLabel(success)}]++
}

// RecordCache counts a result-cache lookup for task.
func RecordCache(task string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	mu.Lock()
	defer mu.Unlock()
	cacheLookups[cacheKey{Task: task, Result: result}]++
}

// RecordPipelineFailure counts a failed pipeline run by the phase that failed.
func RecordPipelineFailure(task, phase string) {
	mu.Lock()
	defer mu.Unlock()
	pipelineFails[failKey{Task: task, Phase: phase}]++
}

func RecordQuotaRejection() {
	mu.Lock()
	defer mu.Unlock()
	quotaRejections++
}

// RecordWebhookDelivery counts one simulated delivery attempt.
func RecordWebhookDelivery(success bool) {
	mu.Lock()
	defer mu.Unlock()
	webhookDelivered[boolLabel(success)]++
}

// Reset clears every counter.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	requestsTotal = make(map[reqKey]int64)
	latencyMsSum = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)
	llmCompletions = make(map[llmKey]int64)
	cacheLookups = make(map[cacheKey]int64)
	pipelineFails = make(map[failKey]int64)
	quotaRejections = 0
	webhookDelivered = make(map[string]int64)
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP bizapi_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE bizapi_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		fmt.Fprintf(&b, "bizapi_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP bizapi_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE bizapi_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP bizapi_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE bizapi_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "bizapi_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "bizapi_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP bizapi_llm_completions_total Total LLM completion calls\n")
	b.WriteString("# TYPE bizapi_llm_completions_total counter\n")

	var llmKeys []llmKey
	for k := range llmCompletions {
		llmKeys = append(llmKeys, k)
	}
	sort.Slice(llmKeys, func(i, j int) bool {
		if llmKeys[i].Provider != llmKeys[j].Provider {
			return llmKeys[i].Provider < llmKeys[j].Provider
		}
		if llmKeys[i].Model != llmKeys[j].Model {
			return llmKeys[i].Model < llmKeys[j].Model
		}
		return llmKeys[i].Success < llmKeys[j].Success
	})

	for _, k := range llmKeys {
		fmt.Fprintf(&b, "bizapi_llm_completions_total{provider=\"%s\",model=\"%s\",success=\"%s\"} %d\n",
			k.Provider, k.Model, k.Success, llmCompletions[k])
	}

	b.WriteString("# HELP bizapi_cache_lookups_total Result cache lookups by task and outcome\n")
	b.WriteString("# TYPE bizapi_cache_lookups_total counter\n")

	var cacheKeys []cacheKey
	for k := range cacheLookups {
		cacheKeys = append(cacheKeys, k)
	}
	sort.Slice(cacheKeys, func(i, j int) bool {
		if cacheKeys[i].Task != cacheKeys[j].Task {
			return cacheKeys[i].Task < cacheKeys[j].Task
		}
		return cacheKeys[i].Result < cacheKeys[j].Result
	})
	for _, k := range cacheKeys {
		fmt.Fprintf(&b, "bizapi_cache_lookups_total{task=\"%s\",result=\"%s\"} %d\n", k.Task, k.Result, cacheLookups[k])
	}

	b.WriteString("# HELP bizapi_pipeline_failures_total Failed pipeline runs by task and phase\n")
	b.WriteString("# TYPE bizapi_pipeline_failures_total counter\n")

	var failKeys []failKey
	for k := range pipelineFails {
		failKeys = append(failKeys, k)
	}
	sort.Slice(failKeys, func(i, j int) bool {
		if failKeys[i].Task != failKeys[j].Task {
			return failKeys[i].Task < failKeys[j].Task
		}
		return failKeys[i].Phase < failKeys[j].Phase
	})
	for _, k := range failKeys {
		fmt.Fprintf(&b, "bizapi_pipeline_failures_total{task=\"%s\",phase=\"%s\"} %d\n", k.Task, k.Phase, pipelineFails[k])
	}

	b.WriteString("# HELP bizapi_quota_rejections_total Requests rejected by the free-call quota\n")
	b.WriteString("# TYPE bizapi_quota_rejections_total counter\n")
	fmt.Fprintf(&b, "bizapi_quota_rejections_total %d\n", quotaRejections)

	b.WriteString("# HELP bizapi_webhook_deliveries_total Simulated webhook deliveries\n")
	b.WriteString("# TYPE bizapi_webhook_deliveries_total counter\n")

	var outcomes []string
	for o := range webhookDelivered {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(&b, "bizapi_webhook_deliveries_total{success=\"%s\"} %d\n", o, webhookDelivered[o])
	}

	return b.String()
}
