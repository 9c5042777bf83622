package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"fundingwatch/config"
	"fundingwatch/logger"
)

type cloudWatchState struct {
	client    *cloudwatch.Client
	namespace string
	region    string
}

var cwState atomic.Pointer[cloudWatchState]

var (
	// cloudWatchPublishInterval bounds how often one metric series is sent.
	cloudWatchPublishInterval = 10 * time.Second

	timeNow            = time.Now
	publishMetricsFunc = publishMetrics

	metricPublishMu    sync.Mutex
	metricPublishTimes = make(map[string]time.Time)

	// pendingPublishes tracks PutMetricData calls still in flight.
	pendingPublishes sync.WaitGroup
)

// InitCloudWatch creates the CloudWatch client. Static credentials are used
// when both keys are configured, otherwise the default AWS chain applies.
// Publishing stays disabled when cfg.Enabled is false.
func InitCloudWatch(ctx context.Context, cfg config.CloudWatchConfig) error {
	if !cfg.Enabled {
		return nil
	}
	log := logger.GetLogger().WithComponent("cloudwatch")

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load AWS configuration: %w", err)
	}

	state := &cloudWatchState{
		client:    cloudwatch.NewFromConfig(awsCfg),
		namespace: cfg.Namespace,
		region:    awsCfg.Region,
	}
	if state.namespace == "" {
		state.namespace = "FundingWatch"
	}
	cwState.Store(state)

	log.WithFields(logger.Fields{
		"region":    state.region,
		"namespace": state.namespace,
	}).Info("initialized CloudWatch client")
	return nil
}

// EmitMetric logs the metric locally, hands it to registered handlers and
// publishes it to CloudWatch when configured.
func EmitMetric(log *logger.Log, component string, metric string, value interface{}, metricType string, fields logger.Fields) {
	metricEvent, ok := recordMetric(log, component, metric, value, metricType, fields)
	if !ok {
		return
	}

	numericValue, ok := toFloat64(metricEvent.Value)
	if !ok {
		logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": metricEvent.Name}).Debug("non-numeric metric value; skipping publish")
		return
	}

	publishMetricDatum(metricEvent, numericValue)
}

func publishMetricDatum(metric Metric, value float64) {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return
	}

	keys := make([]string, 0, len(metric.Fields))
	for k := range metric.Fields {
		if k != "unit" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(metric.Component)}}
	for _, k := range keys {
		if s, ok := metric.Fields[k].(string); ok && s != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
		}
	}

	if !allowPublish(seriesKey(metric.Name, dims)) {
		return
	}

	unit := cwtypes.StandardUnitCount
	if rawUnit, ok := metric.Fields["unit"]; ok {
		if unitStr, ok := rawUnit.(string); ok {
			if parsedUnit, found := metricUnitFromString(unitStr); found {
				unit = parsedUnit
			} else {
				logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": metric.Name, "unit": unitStr}).Debug("unsupported metric unit; defaulting to Count")
			}
		}
	}

	ts := metric.Timestamp
	if ts.IsZero() {
		ts = timeNow()
	}

	data := []cwtypes.MetricDatum{{
		MetricName: aws.String(metric.Name),
		Dimensions: dims,
		Unit:       unit,
		Value:      aws.Float64(value),
		Timestamp:  aws.Time(ts),
	}}
	// EmitMetric runs on request paths; the PutMetricData round trip must
	// not count against the caller's deadline.
	pendingPublishes.Add(1)
	go func() {
		defer pendingPublishes.Done()
		publishMetricsFunc(context.Background(), state, data)
	}()
}

// FlushCloudWatch waits for in-flight publishes until ctx is done.
func FlushCloudWatch(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		pendingPublishes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// allowPublish reports whether the series has not been published within
// cloudWatchPublishInterval, and records the publish when it has not.
func allowPublish(key string) bool {
	now := timeNow()

	metricPublishMu.Lock()
	defer metricPublishMu.Unlock()

	if last, ok := metricPublishTimes[key]; ok && now.Sub(last) < cloudWatchPublishInterval {
		return false
	}
	metricPublishTimes[key] = now
	return true
}

func resetMetricPublishTimes() {
	metricPublishMu.Lock()
	metricPublishTimes = make(map[string]time.Time)
	metricPublishMu.Unlock()
}

func seriesKey(name string, dims []cwtypes.Dimension) string {
	parts := make([]string, 0, len(dims)+1)
	parts = append(parts, name)
	for _, d := range dims {
		parts = append(parts, aws.ToString(d.Name)+"="+aws.ToString(d.Value))
	}
	return strings.Join(parts, "|")
}

func publishMetrics(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
	if state == nil || state.client == nil {
		return
	}
	if len(data) == 0 {
		logger.GetLogger().WithComponent("cloudwatch").Debug("no metric data to publish")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := state.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(state.namespace),
		MetricData: data,
	}); err != nil {
		logger.GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to publish CloudWatch metrics")
		return
	}

	names := make([]string, 0, len(data))
	for _, datum := range data {
		if datum.MetricName != nil {
			names = append(names, *datum.MetricName)
		}
	}

	logger.GetLogger().WithComponent("cloudwatch").WithField("metrics", strings.Join(names, ",")).Debug("published metrics to CloudWatch")
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func metricUnitFromString(unit string) (cwtypes.StandardUnit, bool) {
	switch strings.ToLower(unit) {
	case "count":
		return cwtypes.StandardUnitCount, true
	case "percent":
		return cwtypes.StandardUnitPercent, true
	case "milliseconds", "ms":
		return cwtypes.StandardUnitMilliseconds, true
	case "seconds":
		return cwtypes.StandardUnitSeconds, true
	case "none":
		return cwtypes.StandardUnitNone, true
	default:
		return cwtypes.StandardUnitCount, false
	}
}
