// Package docs 控制 API 的 OpenAPI 文档（swag 格式）
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
	"schemes": {{ marshal .Schemes }},
	"swagger": "2.0",
	"info": {
		"description": "{{escape .Description}}",
		"title": "{{.Title}}",
		"contact": {},
		"version": "{{.Version}}"
	},
	"host": "{{.Host}}",
	"basePath": "{{.BasePath}}",
	"paths": {
		"/api/ports": {
			"get": {
				"security": [
					{
						"ApiKeyAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"串口会话"
				],
				"summary": "串口清单",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					}
				}
			}
		},
		"/api/session": {
			"get": {
				"security": [
					{
						"ApiKeyAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"串口会话"
				],
				"summary": "串口会话状态",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					}
				}
			}
		},
		"/api/session/open": {
			"post": {
				"security": [
					{
						"ApiKeyAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"串口会话"
				],
				"summary": "打开串口会话",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"409": {
						"description": "已打开",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"502": {
						"description": "串口打开失败",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					}
				},
				"parameters": [
					{
						"description": "端口与波特率",
						"name": "request",
						"in": "body",
						"required": false,
						"schema": {
							"$ref": "#/definitions/api.OpenSessionRequest"
						}
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/api/session/close": {
			"post": {
				"security": [
					{
						"ApiKeyAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"串口会话"
				],
				"summary": "关闭串口会话",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					}
				}
			}
		},
		"/api/commands": {
			"get": {
				"security": [
					{
						"ApiKeyAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"设备命令"
				],
				"summary": "下行命令审计",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"description": "命令名，如 set_rtc",
						"name": "command",
						"in": "query"
					},
					{
						"type": "string",
						"description": "ok|rejected|rate_limited|failed",
						"name": "result",
						"in": "query"
					},
					{
						"type": "string",
						"description": "RFC3339 起始时间",
						"name": "since",
						"in": "query"
					},
					{
						"type": "integer",
						"description": "条数(默认50，最大500)",
						"name": "limit",
						"in": "query"
					}
				]
			}
		},
		"/api/commands/check-com": {
			"post": {
				"security": [
					{
						"ApiKeyAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"设备命令"
				],
				"summary": "通信检测",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"409": {
						"description": "串口未连接",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"429": {
						"description": "命令过于频繁",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"502": {
						"description": "串口写入失败",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					}
				}
			}
		},
		"/api/commands/read-record": {
			"post": {
				"security": [
					{
						"ApiKeyAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"设备命令"
				],
				"summary": "读取设备记录",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"409": {
						"description": "串口未连接",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"429": {
						"description": "命令过于频繁",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"502": {
						"description": "串口写入失败",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					}
				}
			}
		},
		"/api/commands/clear-record": {
			"post": {
				"security": [
					{
						"ApiKeyAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"设备命令"
				],
				"summary": "清除设备记录",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"409": {
						"description": "串口未连接",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"429": {
						"description": "命令过于频繁",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"502": {
						"description": "串口写入失败",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					}
				}
			}
		},
		"/api/commands/threshold": {
			"post": {
				"security": [
					{
						"ApiKeyAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"设备命令"
				],
				"summary": "设置心率上下限",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"409": {
						"description": "串口未连接",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"429": {
						"description": "命令过于频繁",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"502": {
						"description": "串口写入失败",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"400": {
						"description": "参数错误",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					}
				},
				"parameters": [
					{
						"description": "上下限",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.ThresholdRequest"
						}
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/api/commands/interval": {
			"post": {
				"security": [
					{
						"ApiKeyAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"设备命令"
				],
				"summary": "设置上报间隔",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"409": {
						"description": "串口未连接",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"429": {
						"description": "命令过于频繁",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"502": {
						"description": "串口写入失败",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"400": {
						"description": "参数错误",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					}
				},
				"parameters": [
					{
						"description": "间隔秒数",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.IntervalRequest"
						}
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/api/commands/rtc": {
			"post": {
				"security": [
					{
						"ApiKeyAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"设备命令"
				],
				"summary": "设置设备时间",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"409": {
						"description": "串口未连接",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"429": {
						"description": "命令过于频繁",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"502": {
						"description": "串口写入失败",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"400": {
						"description": "时间无效",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					}
				},
				"description": "mode 取 12h、24h 或 epoch；日期时间按遥测时区解析",
				"parameters": [
					{
						"description": "时间输入",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/api.RTCRequest"
						}
					}
				],
				"consumes": [
					"application/json"
				]
			}
		},
		"/api/telemetry/latest": {
			"get": {
				"security": [
					{
						"ApiKeyAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"遥测"
				],
				"summary": "最新遥测",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					}
				}
			}
		},
		"/api/telemetry/samples": {
			"get": {
				"security": [
					{
						"ApiKeyAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"遥测"
				],
				"summary": "历史样本",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					},
					"503": {
						"description": "未启用数据库",
						"schema": {
							"$ref": "#/definitions/api.StandardResponse"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"description": "heart_rate|ppg.raw|ppg.filtered|ppg.host_filtered|log",
						"name": "kind",
						"in": "query"
					},
					{
						"type": "integer",
						"description": "条数(默认100，最大1000)",
						"name": "limit",
						"in": "query"
					}
				]
			}
		}
	},
	"definitions": {
		"api.StandardResponse": {
			"type": "object",
			"properties": {
				"code": {
					"type": "integer"
				},
				"message": {
					"type": "string"
				},
				"data": {},
				"request_id": {
					"type": "string"
				},
				"timestamp": {
					"type": "integer"
				}
			}
		},
		"api.OpenSessionRequest": {
			"type": "object",
			"properties": {
				"port": {
					"type": "string"
				},
				"baud_rate": {
					"type": "integer",
					"minimum": 0
				}
			}
		},
		"api.ThresholdRequest": {
			"type": "object",
			"properties": {
				"high": {
					"type": "integer",
					"minimum": 0,
					"maximum": 255
				},
				"low": {
					"type": "integer",
					"minimum": 0,
					"maximum": 255
				}
			}
		},
		"api.IntervalRequest": {
			"type": "object",
			"properties": {
				"seconds": {
					"type": "integer",
					"minimum": 0,
					"maximum": 4294967295
				}
			}
		},
		"api.RTCRequest": {
			"type": "object",
			"required": [
				"mode"
			],
			"properties": {
				"mode": {
					"type": "string"
				},
				"date": {
					"type": "string"
				},
				"time": {
					"type": "string"
				},
				"epoch": {
					"type": "string"
				}
			}
		}
	},
	"securityDefinitions": {
		"ApiKeyAuth": {
			"type": "apiKey",
			"name": "X-API-Key",
			"in": "header"
		}
	}
}`

// SwaggerInfo 文档元信息
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "pulseox control API",
	Description:      "Serial gateway for the pulse-oximeter: session control, device commands and telemetry.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
