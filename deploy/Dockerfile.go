FROM golang:1.24-alpine AS builder

# api | worker | simulate
ARG SERVICE=api

WORKDIR /app

# Dependencies
COPY go.mod go.sum ./
RUN go mod download

# Source
COPY . .

# Build
RUN CGO_ENABLED=0 GOOS=linux go build -trimpath -o /app/service ./cmd/${SERVICE}

# Runtime
FROM alpine:3.19

RUN apk add --no-cache ca-certificates tzdata

WORKDIR /app

COPY --from=builder /app/service .
COPY --from=builder /app/migrations ./migrations
COPY --from=builder /app/scenarios ./scenarios

# API_PORT and WORKER_PORT defaults
EXPOSE 3000 3001

ENTRYPOINT ["./service"]
