package config

type AppConfig struct {
	APIPort string `env:"PORT,required" envDefault:"11000"`
	APIKey  string `env:"API_KEY,required"`
}

type DatabaseConfig struct {
	Host            string `env:"DNSGUARD_POSTGRES_HOST,required"`
	Port            string `env:"DNSGUARD_POSTGRES_PORT,required"`
	User            string `env:"DNSGUARD_POSTGRES_USER,required"`
	DBName          string `env:"DNSGUARD_POSTGRES_DB_NAME,required"`
	Password        string `env:"DNSGUARD_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"DNSGUARD_POSTGRES_DB_MAX_CONN" envDefault:"50"`
	MaxIdleConn     int    `env:"DNSGUARD_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"DNSGUARD_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"300"`
	SSLMode         string `env:"DNSGUARD_POSTGRES_SSL_MODE" envDefault:"require"`
}

type VaultConfig struct {
	// EncryptionKey protects provider credentials and DKIM private keys at
	// rest. Raw 32 bytes, base64: prefixed, 64 hex chars or bare base64.
	EncryptionKey string `env:"DNSGUARD_ENCRYPTION_KEY,required"`
}

type ResolverConfig struct {
	Nameservers    []string `env:"DNS_NAMESERVERS" envSeparator:","`
	TimeoutSeconds int      `env:"DNS_TIMEOUT_SECONDS" envDefault:"5"`
}

type CloudflareConfig struct {
	Url string `env:"CLOUDFLARE_URL" envDefault:"https://api.cloudflare.com/client/v4"`
	// AccountID scopes worker script and KV namespace calls when the
	// provider credentials do not carry an accountId of their own.
	AccountID string `env:"CLOUDFLARE_ACCOUNT_ID"`
}

type MtaConfig struct {
	Url    string `env:"MTA_URL"`
	ApiKey string `env:"MTA_API_KEY"`
}
