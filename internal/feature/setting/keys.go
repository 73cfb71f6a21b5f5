package setting

// 启动前读取（只来自本地配置，不入库）
const (
	KeyDatabaseURL      = "database.url"
	KeyDatabaseUsername = "database.username"
	KeyDatabasePassword = "database.password"
)

// 运行期读取；首次启动时写入 system_setting
const (
	KeyTokenIssuer   = "security.token.issuer"
	KeyTokenExpire   = "security.token.expire_time" // 秒
	KeyActivationURL = "user.register.activation_url"
)

// RuntimeKeys 可入库的 key；数据库凭据不在其中
var RuntimeKeys = []string{KeyTokenIssuer, KeyTokenExpire, KeyActivationURL}
