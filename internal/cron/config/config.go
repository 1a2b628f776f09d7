package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Scheduled re-verification of all registered domains, hourly
	CronScheduleDomainVerification string `env:"CRON_SCHEDULE_DOMAIN_VERIFICATION" envDefault:"0 0 * * * *"`
}
