package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/openauthd/oauthd"
	"github.com/openauthd/oauthd/api/echoapi"
	"github.com/openauthd/oauthd/cache"
	redcache "github.com/openauthd/oauthd/cache/redis"
	"github.com/openauthd/oauthd/config"
	"github.com/openauthd/oauthd/domain"
	"github.com/openauthd/oauthd/mongodb"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx := context.Background()

	mongoClient, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Warn().Err(err).Msg("failed to disconnect from MongoDB")
		}
	}()
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal().Err(err).Msg("MongoDB is not reachable")
	}
	db := mongoClient.Database(cfg.MongoDBName)

	clock := domain.SystemClock
	accessTokens := mongodb.NewAccessTokenRepository(db, clock)
	refreshTokens := mongodb.NewRefreshTokenRepository(db, clock)
	authCodes := mongodb.NewAuthCodeRepository(db, clock)
	clients := mongodb.NewClientRepository(db)
	scopes := mongodb.NewScopeRepository(db)

	var tokenCache cache.TokenCache
	if cfg.RedisAddr != "" {
		tokenCache = redcache.NewTokenCache(goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr}))
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis token cache")
	} else {
		memCache := cache.NewMemoryTokenCache()
		defer memCache.Close()
		tokenCache = memCache
	}

	signingKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to generate signing key")
	}
	log.Warn().Msg("using an ephemeral signing key; issued tokens will not survive a restart")

	payloadKey, err := loadPayloadKey(cfg.PayloadKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid PAYLOAD_KEY")
	}
	codec, err := oauthd.NewPayloadCodec(payloadKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize payload codec")
	}

	signer := oauthd.NewTokenSigner(signingKey, uuid.NewString(), cfg.Issuer, clock)

	issuer := oauthd.NewIssuer(oauthd.IssuerOptions{
		Clients:         clients,
		Scopes:          scopes,
		AccessTokens:    accessTokens,
		RefreshTokens:   refreshTokens,
		AuthCodes:       authCodes,
		Signer:          signer,
		Codec:           codec,
		Clock:           clock,
		AccessTokenTTL:  time.Duration(cfg.AccessTokenTTLMin) * time.Minute,
		RefreshTokenTTL: time.Duration(cfg.RefreshTokenTTLHour) * time.Hour,
	})
	authorizer := oauthd.NewAuthorizer(oauthd.AuthorizerOptions{
		Clients:      clients,
		Scopes:       scopes,
		AccessTokens: accessTokens,
		AuthCodes:    authCodes,
		Signer:       signer,
		Codec:        codec,
		Clock:        clock,
		AuthCodeTTL:  time.Duration(cfg.AuthCodeTTLMin) * time.Minute,
	})
	authenticator := oauthd.NewAuthenticator(accessTokens, tokenCache, signer, clock)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())

	api := echoapi.NewOAuth2API(issuer, authorizer, authenticator)
	api.RegisterRoutes(e)
	e.GET("/oauth2/userinfo", echoapi.UserInfoHandler, echoapi.RequireAuth(authenticator))

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting HTTP server")
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// loadPayloadKey decodes the configured payload encryption key, generating
// an ephemeral one when none is configured.
func loadPayloadKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		log.Warn().Msg("using an ephemeral payload key; issued refresh tokens and codes will not survive a restart")
		return key, nil
	}
	return hex.DecodeString(hexKey)
}
